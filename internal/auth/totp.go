package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters. These are explicit in the provisioning URI so
// authenticator apps cannot guess differently from the server.
const (
	totpPeriod = 30
	totpDigits = otp.DigitsSix
	totpAlg    = otp.AlgorithmSHA1

	// totpSkew is the number of adjacent time steps accepted on either side
	// of the current one, tolerating device clock drift. A code from three
	// or more steps away is rejected.
	totpSkew = 2
)

// SecondFactor holds the process-wide TOTP shared secret and answers
// code-verification queries against it.
type SecondFactor struct {
	key *otp.Key
}

// NewSecondFactor generates a fresh shared secret for the given issuer.
// The secret lives for the process lifetime; there is no rotation.
func NewSecondFactor(issuer string) (*SecondFactor, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: "operator",
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   totpAlg,
	})
	if err != nil {
		return nil, fmt.Errorf("generating TOTP secret: %w", err)
	}
	return &SecondFactor{key: key}, nil
}

// Secret returns the base32-encoded shared secret for manual enrollment.
func (sf *SecondFactor) Secret() string {
	return sf.key.Secret()
}

// EnrollmentURI returns the otpauth:// provisioning URI for authenticator
// apps. Algorithm, digit count, and period are all explicit.
func (sf *SecondFactor) EnrollmentURI() string {
	return sf.key.URL()
}

// Issuer returns the issuer label embedded in the enrollment URI.
func (sf *SecondFactor) Issuer() string {
	return sf.key.Issuer()
}

// Verify reports whether the code is valid for the current time, accepting
// codes from up to totpSkew adjacent steps to tolerate clock skew.
func (sf *SecondFactor) Verify(code string) bool {
	return sf.verifyAt(code, time.Now().UTC())
}

// verifyAt is the time-injectable core of Verify, used by tests.
func (sf *SecondFactor) verifyAt(code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, sf.key.Secret(), at, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    totpDigits,
		Algorithm: totpAlg,
	})
	return err == nil && ok
}
