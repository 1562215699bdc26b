// File: internal/domain/errors/errors.go
package errors

import (
	"errors"
)

// Authentication failure taxonomy. Every error that crosses the token
// validator boundary wraps exactly one of these sentinels.
var (
	// ErrMissingToken is returned when the request carries no bearer token.
	ErrMissingToken = errors.New("authorization token is missing")
	// ErrMalformedToken is returned when the token fails structural validation
	// before any cryptographic work.
	ErrMalformedToken = errors.New("token structure is malformed")
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("token signature is invalid")
	// ErrExpiredToken is returned when the token is past its expiry.
	ErrExpiredToken = errors.New("token has expired")
	// ErrTokenNotYetValid is returned when the token's nbf is in the future.
	ErrTokenNotYetValid = errors.New("token not yet valid")
	// ErrInvalidIssuer is returned when iss does not match the realm issuer.
	ErrInvalidIssuer = errors.New("token issuer is not trusted")
	// ErrInvalidAudience is returned when aud does not contain the configured audience.
	ErrInvalidAudience = errors.New("token audience mismatch")
	// ErrClaimTypeMismatch is returned when an optional claim is present with the wrong shape.
	ErrClaimTypeMismatch = errors.New("token claim has unexpected type")
	// ErrKeyNotFound is returned when the kid is absent from the key set after one refresh.
	ErrKeyNotFound = errors.New("signing key not found")
	// ErrKeySourceUnavailable is returned when no key set was ever fetched and the
	// provider cannot be reached.
	ErrKeySourceUnavailable = errors.New("signing key source unavailable")
	// ErrRateLimited is returned when a source identity exceeded its attempt budget.
	ErrRateLimited = errors.New("too many authentication attempts")
	// ErrInternal covers unexpected failures; callers must fail closed on it.
	ErrInternal = errors.New("internal authentication error")
)

// External rejection codes exposed on the wire. Internal detail never leaves
// the server; clients only ever see one of these.
const (
	CodeMissingToken = "missing_token"
	CodeInvalidToken = "invalid_token"
	CodeTokenExpired = "token_expired"
	CodeRateLimited  = "rate_limited"
)

// CodeFor maps any taxonomy member to its external rejection code.
// Everything that is not expiry, absence or throttling collapses to the
// generic invalid_token so that internals cannot be probed.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return CodeMissingToken
	case errors.Is(err, ErrExpiredToken):
		return CodeTokenExpired
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInvalidToken
	}
}

// IsExpired reports whether the error is a token expiry.
func IsExpired(err error) bool {
	return errors.Is(err, ErrExpiredToken)
}

// IsStructural reports whether the error was raised before any cryptographic work.
func IsStructural(err error) bool {
	return errors.Is(err, ErrMalformedToken)
}

// IsKeySourceFailure reports whether the error comes from the identity provider
// being unreachable rather than from the presented token.
func IsKeySourceFailure(err error) bool {
	return errors.Is(err, ErrKeySourceUnavailable)
}

// IsUnauthorized reports whether the error belongs to the authentication
// taxonomy at all, as opposed to an unexpected internal failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrTokenNotYetValid) ||
		errors.Is(err, ErrInvalidIssuer) ||
		errors.Is(err, ErrInvalidAudience) ||
		errors.Is(err, ErrClaimTypeMismatch) ||
		errors.Is(err, ErrKeyNotFound) ||
		errors.Is(err, ErrKeySourceUnavailable)
}
