package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/ewanmcc/fleetlink-core/internal/infrastructure/config"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// testAuthConfig returns a valid auth configuration for tests.
func testAuthConfig(twoFactor bool) config.AuthConfig {
	return config.AuthConfig{
		AdminUsername: "operator",
		AdminPassword: "correct horse battery staple",
		TwoFactor: config.TwoFactorConfig{
			Enabled: twoFactor,
			Issuer:  "Fleetlink Test",
		},
		JWT: config.JWTConfig{
			Secret:   testJWTSecret,
			TokenTTL: 24,
		},
	}
}

func newTestAuthenticator(t *testing.T, twoFactor bool) *Authenticator {
	t.Helper()

	a, err := New(testAuthConfig(twoFactor))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return a
}

func TestNew_MissingCredentials(t *testing.T) {
	cfg := testAuthConfig(false)
	cfg.AdminPassword = ""
	if _, err := New(cfg); err == nil {
		t.Fatal("New() without password should fail")
	}

	cfg = testAuthConfig(false)
	cfg.JWT.Secret = ""
	if _, err := New(cfg); err == nil {
		t.Fatal("New() without JWT secret should fail")
	}
}

func TestAuthenticate_Success(t *testing.T) {
	a := newTestAuthenticator(t, false)

	token, err := a.Authenticate("operator", "correct horse battery staple", "")
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if token == "" {
		t.Fatal("Authenticate() returned empty token")
	}

	claims, err := a.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() error: %v", err)
	}
	if claims.Subject != "operator" {
		t.Errorf("subject = %q, want operator", claims.Subject)
	}
	if claims.Role != RoleOperator {
		t.Errorf("role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ExpiresAt == nil {
		t.Fatal("token has no expiry")
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < 23*time.Hour || ttl > 25*time.Hour {
		t.Errorf("token TTL = %v, want ~24h", ttl)
	}
}

func TestAuthenticate_InvalidCredentials(t *testing.T) {
	a := newTestAuthenticator(t, false)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong username", "intruder", "correct horse battery staple"},
		{"wrong password", "operator", "wrong"},
		{"both wrong", "intruder", "wrong"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := a.Authenticate(tt.username, tt.password, "")
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("error = %v, want ErrInvalidCredentials", err)
			}
			if token != "" {
				t.Error("no token should be issued on failure")
			}
		})
	}
}

func TestAuthenticate_SecondFactorRequired(t *testing.T) {
	a := newTestAuthenticator(t, true)

	token, err := a.Authenticate("operator", "correct horse battery staple", "")
	if !errors.Is(err, ErrSecondFactorRequired) {
		t.Fatalf("error = %v, want ErrSecondFactorRequired", err)
	}
	if token != "" {
		t.Fatal("no token should be issued without the second factor")
	}

	// Wrong credentials with no code must NOT surface the second-factor
	// signal: that would confirm the password was correct.
	_, err = a.Authenticate("operator", "wrong", "")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticate_SecondFactorCode(t *testing.T) {
	a := newTestAuthenticator(t, true)

	// Correct code issues a token.
	code, err := totp.GenerateCode(a.second.Secret(), time.Now().UTC())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	token, err := a.Authenticate("operator", "correct horse battery staple", code)
	if err != nil {
		t.Fatalf("Authenticate() with valid code: %v", err)
	}
	if _, err := a.VerifyToken(token); err != nil {
		t.Fatalf("VerifyToken() error: %v", err)
	}

	// Wrong code is rejected without issuing a token.
	token, err = a.Authenticate("operator", "correct horse battery staple", "000000")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("error = %v, want ErrInvalidCredentials", err)
	}
	if token != "" {
		t.Error("no token should be issued with a wrong code")
	}
}

func TestVerifyToken_Invalid(t *testing.T) {
	a := newTestAuthenticator(t, false)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"tampered", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJvcGVyYXRvciJ9.invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.VerifyToken(tt.token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	a := newTestAuthenticator(t, false)

	expired, err := signToken("operator", testJWTSecret, -time.Minute)
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}

	if _, err := a.VerifyToken(expired); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid for expired token", err)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	a := newTestAuthenticator(t, false)

	forged, err := signToken("operator", "another-secret-key-that-is-32-chars!", time.Hour)
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}

	if _, err := a.VerifyToken(forged); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("error = %v, want ErrTokenInvalid for forged token", err)
	}
}

func TestSetupMaterial(t *testing.T) {
	a := newTestAuthenticator(t, false)

	material := a.SetupMaterial()
	if material.Secret == "" {
		t.Error("setup material has no secret")
	}
	if material.EnrollmentURI == "" {
		t.Error("setup material has no enrollment URI")
	}

	// The secret is stable across calls: singleton process-wide state.
	again := a.SetupMaterial()
	if material.Secret != again.Secret {
		t.Error("TOTP secret should not change between calls")
	}

	// A code generated from the advertised secret verifies.
	code, err := totp.GenerateCode(material.Secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if !a.VerifyCode(code) {
		t.Error("code from advertised secret should verify")
	}
}

func TestTwoFactorEnabled(t *testing.T) {
	if newTestAuthenticator(t, false).TwoFactorEnabled() {
		t.Error("TwoFactorEnabled() = true, want false")
	}
	if !newTestAuthenticator(t, true).TwoFactorEnabled() {
		t.Error("TwoFactorEnabled() = false, want true")
	}
}

func TestSecureCompare(t *testing.T) {
	if !secureCompare("abc", "abc") {
		t.Error("equal strings should compare true")
	}
	if secureCompare("abc", "abd") {
		t.Error("different strings should compare false")
	}
	if secureCompare("abc", "abcd") {
		t.Error("different lengths should compare false")
	}
}
