package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/config"
)

// Authenticator validates operator credentials and issues/verifies session
// tokens. It is constructed once at startup from configuration and is
// immutable afterwards.
type Authenticator struct {
	username  string
	password  string
	jwtSecret string
	tokenTTL  time.Duration
	twoFactor bool
	second    *SecondFactor
}

// SetupMaterial is the enrollment bundle for an authenticator app.
type SetupMaterial struct {
	Secret        string
	EnrollmentURI string
	Issuer        string
}

// New creates an Authenticator from configuration.
//
// The TOTP shared secret is generated here regardless of whether the second
// factor is currently enabled, so the setup endpoint can always produce
// enrollment material.
func New(cfg config.AuthConfig) (*Authenticator, error) {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil, fmt.Errorf("auth: operator credentials are required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("auth: JWT secret is required")
	}

	issuer := cfg.TwoFactor.Issuer
	if issuer == "" {
		issuer = "Fleetlink"
	}
	second, err := NewSecondFactor(issuer)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(cfg.JWT.TokenTTL) * time.Hour
	if cfg.JWT.TokenTTL <= 0 {
		ttl = 24 * time.Hour
	}

	return &Authenticator{
		username:  cfg.AdminUsername,
		password:  cfg.AdminPassword,
		jwtSecret: cfg.JWT.Secret,
		tokenTTL:  ttl,
		twoFactor: cfg.TwoFactor.Enabled,
		second:    second,
	}, nil
}

// Authenticate validates the supplied credentials and returns a signed
// session token.
//
// Returns ErrInvalidCredentials if the username/password pair does not match
// (never revealing which part was wrong), ErrSecondFactorRequired if the
// second factor is enabled and no code was supplied, and
// ErrInvalidCredentials if a supplied code does not verify.
func (a *Authenticator) Authenticate(username, password, otpCode string) (string, error) {
	// Evaluate both comparisons unconditionally so timing does not reveal
	// which credential failed.
	userOK := secureCompare(username, a.username)
	passOK := secureCompare(password, a.password)
	if !userOK || !passOK {
		return "", ErrInvalidCredentials
	}

	if a.twoFactor {
		if otpCode == "" {
			return "", ErrSecondFactorRequired
		}
		if !a.second.Verify(otpCode) {
			return "", fmt.Errorf("%w: second factor rejected", ErrInvalidCredentials)
		}
	}

	return signToken(a.username, a.jwtSecret, a.tokenTTL)
}

// VerifyToken validates a session token and returns its claims.
// Returns ErrTokenInvalid on signature mismatch, malformed input, or expiry.
func (a *Authenticator) VerifyToken(token string) (*Claims, error) {
	return parseToken(token, a.jwtSecret)
}

// SetupMaterial returns the enrollment bundle for the process-wide TOTP
// secret. Callers are expected to render the URI as a QR code.
func (a *Authenticator) SetupMaterial() SetupMaterial {
	return SetupMaterial{
		Secret:        a.second.Secret(),
		EnrollmentURI: a.second.EnrollmentURI(),
		Issuer:        a.second.Issuer(),
	}
}

// VerifyCode checks a TOTP code against the shared secret without issuing a
// token. Used by the standalone second-factor verification endpoint.
func (a *Authenticator) VerifyCode(code string) bool {
	return a.second.Verify(code)
}

// TokenTTL returns the session token validity window.
func (a *Authenticator) TokenTTL() time.Duration {
	return a.tokenTTL
}

// TwoFactorEnabled reports whether the second factor is required at login.
func (a *Authenticator) TwoFactorEnabled() bool {
	return a.twoFactor
}

// secureCompare performs a constant-time string comparison. Both inputs are
// hashed first so the comparison length never depends on either value.
func secureCompare(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
