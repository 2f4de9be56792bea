// Package auth implements operator session authentication for Fleetlink Core.
//
// It validates the configured operator credentials (with an optional TOTP
// second factor), issues signed session tokens, and verifies tokens presented
// on privileged calls. The TOTP shared secret is process-wide singleton
// state: generated once at startup and held for the process lifetime, with
// no rotation.
//
// All methods are safe for concurrent use; the Authenticator is immutable
// after construction.
package auth
