// Package totp generates MFA secrets and verifies RFC 6238 one-time codes.
package totp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Verifier checks six-digit SHA-1 codes on a 30 second step, accepting one
// step of clock skew either way.
type Verifier struct {
	now func() time.Time
}

func NewVerifier() *Verifier {
	return &Verifier{now: time.Now}
}

var opts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Verify reports whether code is valid for the base32 secret right now.
func (v *Verifier) Verify(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != 6 {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, v.now().UTC(), opts)
	return err == nil && ok
}

const issuer = "fintrail"

// Generate creates a random secret for account and returns it with the
// otpauth:// URI an authenticator app imports. The key uses the same
// parameters Verify checks against.
func (v *Verifier) Generate(account string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      opts.Period,
		Digits:      opts.Digits,
		Algorithm:   opts.Algorithm,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}
