package auth

import "time"

// Method indicates how a request was authenticated.
type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodJWT    Method = "jwt"
)

// Identity is an authenticated caller of the read API.
type Identity struct {
	// Principal identifies the caller: the token subject, or a short
	// fingerprint of the API key.
	Principal string

	Method Method

	// Claims holds the verified token claims. Empty for API keys.
	Claims map[string]any

	// ExpiresAt is zero when the credential does not expire.
	ExpiresAt time.Time
}
