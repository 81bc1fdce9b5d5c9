package auth

import (
	"fmt"
	"strings"
)

// MinSecretLength is the shortest accepted HMAC secret, in bytes.
const MinSecretLength = 32

// Config enables authenticators for the read API. With no keys and no
// secret, authentication is off.
type Config struct {
	// APIKeys are accepted keys, plain or "sha256:<hex>".
	APIKeys []string `koanf:"api_keys"`

	// APIKeyHeader carries the key. Default: X-API-Key
	APIKeyHeader string `koanf:"api_key_header"`

	// JWTSecret enables bearer tokens signed with this HMAC key.
	JWTSecret string `koanf:"jwt_secret"`

	JWTIssuer   string `koanf:"jwt_issuer"`
	JWTAudience string `koanf:"jwt_audience"`
}

// Enabled reports whether any authenticator is configured.
func (c Config) Enabled() bool {
	return len(c.APIKeys) > 0 || c.JWTSecret != ""
}

// Validate rejects blank keys, malformed hashed keys and short secrets.
func (c Config) Validate() error {
	for i, k := range c.APIKeys {
		k = strings.TrimSpace(k)
		if k == "" {
			return fmt.Errorf("%w: api_keys[%d] is empty", ErrInvalidConfig, i)
		}
		if digest, ok := strings.CutPrefix(k, hashedPrefix); ok && len(digest) != 64 {
			return fmt.Errorf("%w: api_keys[%d] is not a sha256 hex digest", ErrInvalidConfig, i)
		}
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < MinSecretLength {
		return fmt.Errorf("%w: jwt_secret must be at least %d bytes", ErrInvalidConfig, MinSecretLength)
	}
	return nil
}

// New builds the configured authenticators, API key first. It returns nil
// when c is not Enabled.
func New(c Config) Authenticator {
	var chain Chain
	if len(c.APIKeys) > 0 {
		chain = append(chain, NewAPIKeyAuthenticator(c.APIKeyHeader, c.APIKeys))
	}
	if c.JWTSecret != "" {
		chain = append(chain, NewJWTAuthenticator(JWTConfig{
			Secret:   []byte(c.JWTSecret),
			Issuer:   c.JWTIssuer,
			Audience: c.JWTAudience,
		}))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}
