package auth

import "errors"

// Sentinel errors for authentication operations.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, auth.ErrSecondFactorRequired) {
//	    // re-prompt for a TOTP code without discarding the password
//	}
var (
	// ErrInvalidCredentials is returned when the username/password pair (or a
	// supplied TOTP code) does not match. It deliberately does not reveal
	// which part was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrSecondFactorRequired is returned when the credentials are correct
	// but the second factor is enabled and no code was supplied. This is a
	// recoverable condition: callers should re-prompt for a code.
	ErrSecondFactorRequired = errors.New("auth: second factor required")

	// ErrTokenInvalid is returned when a session token fails signature
	// verification, is malformed, or has expired.
	ErrTokenInvalid = errors.New("auth: invalid token")
)
