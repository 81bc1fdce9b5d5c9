package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// DefaultAPIKeyHeader carries API keys when no header is configured.
const DefaultAPIKeyHeader = "X-API-Key"

// hashedPrefix marks a configured key that is already a SHA-256 hex digest.
const hashedPrefix = "sha256:"

// APIKeyAuthenticator accepts requests whose key header matches one of a
// fixed set of keys. Only key hashes are kept in memory.
type APIKeyAuthenticator struct {
	header string
	hashes [][]byte
}

// NewAPIKeyAuthenticator creates an authenticator for keys. An entry of the
// form "sha256:<hex>" is taken as an already hashed key. An empty header
// means DefaultAPIKeyHeader.
func NewAPIKeyAuthenticator(header string, keys []string) *APIKeyAuthenticator {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	a := &APIKeyAuthenticator{header: header}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if digest, ok := strings.CutPrefix(k, hashedPrefix); ok {
			a.hashes = append(a.hashes, []byte(strings.ToLower(digest)))
			continue
		}
		a.hashes = append(a.hashes, []byte(HashAPIKey(k)))
	}
	return a
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string {
	return "api_key"
}

// Supports reports whether the key header is present.
func (a *APIKeyAuthenticator) Supports(h http.Header) bool {
	return h.Get(a.header) != ""
}

// Authenticate compares the key's hash against every configured hash.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, h http.Header) (*Identity, error) {
	key := strings.TrimSpace(h.Get(a.header))
	if key == "" {
		return nil, ErrMissingCredentials
	}

	got := []byte(HashAPIKey(key))
	match := 0
	for _, want := range a.hashes {
		match |= subtle.ConstantTimeCompare(got, want)
	}
	if match != 1 {
		return nil, ErrInvalidCredentials
	}
	return &Identity{
		Principal: "key:" + string(got[:8]),
		Method:    MethodAPIKey,
	}, nil
}

// HashAPIKey returns the hex SHA-256 of key, the form accepted with the
// "sha256:" prefix in configuration.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)
