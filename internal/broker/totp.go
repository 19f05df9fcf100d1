package broker

import (
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
)

// TOTPCode turns a stored secret into the 6-digit code vendors expect
// at login. Short values are assumed to already be a one-time code
// typed in by the operator and pass through unchanged.
func TOTPCode(secret string) (string, error) {
	if len(secret) <= 10 {
		return secret, nil
	}
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		return "", fmt.Errorf("broker: generate totp: %w", err)
	}
	return code, nil
}
