package auth

import (
	"context"
	"errors"
	"net/http"
)

// Authenticator validates the credentials carried in request headers.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Authenticate wraps one of the package's sentinel errors when the
//   credentials are missing or rejected.
type Authenticator interface {
	// Name returns a unique identifier for this authenticator.
	Name() string

	// Supports reports whether the headers carry this authenticator's
	// kind of credential.
	Supports(h http.Header) bool

	// Authenticate validates the credential and returns the caller.
	Authenticate(ctx context.Context, h http.Header) (*Identity, error)
}

// Chain tries authenticators in order.
type Chain []Authenticator

// Name returns "chain".
func (c Chain) Name() string {
	return "chain"
}

// Supports reports whether any member supports the headers.
func (c Chain) Supports(h http.Header) bool {
	for _, a := range c {
		if a.Supports(h) {
			return true
		}
	}
	return false
}

// Authenticate returns the first successful member's identity. When every
// supporting member rejects the request, the last rejection is returned;
// when none supports it, ErrMissingCredentials.
func (c Chain) Authenticate(ctx context.Context, h http.Header) (*Identity, error) {
	err := ErrMissingCredentials
	for _, a := range c {
		if !a.Supports(h) {
			continue
		}
		id, aerr := a.Authenticate(ctx, h)
		if aerr == nil {
			return id, nil
		}
		err = aerr
	}
	return nil, err
}

// reason returns the sentinel text reported to clients.
func reason(err error) string {
	for _, sentinel := range []error{ErrMissingCredentials, ErrTokenExpired, ErrTokenMalformed, ErrInvalidCredentials} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ErrInvalidCredentials.Error()
}

var _ Authenticator = Chain(nil)
