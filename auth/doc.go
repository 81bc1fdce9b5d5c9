// Package auth guards the telemetry read API.
//
// Two authenticators are provided: APIKeyAuthenticator matches a header
// against SHA-256 hashes of configured keys, and JWTAuthenticator validates
// HMAC-signed bearer tokens. Chain tries them in order, and Middleware turns
// a failed authentication into a 401.
//
// Access records and error events carry request URLs, client addresses and
// headers, so hosts that expose /telemetry beyond localhost should enable at
// least one authenticator through Config.
package auth
