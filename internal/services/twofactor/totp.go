// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package twofactor

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters: SHA-1, 6 digits, 30-second step, 20-byte secret. The
// validation window accepts the previous, current and next step to tolerate
// clock drift.
const (
	totpPeriod     = 30
	totpSecretSize = 20
	totpSkew       = 1
)

// generateKey creates a fresh TOTP key for the given account.
// Returns the base32 secret and the otpauth:// provisioning URL the client
// renders as a QR code.
func generateKey(issuer, accountName string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// validateCode checks a 6-digit code against the secret within the drift
// window. Malformed codes validate as false, never as an error.
func validateCode(secret, code string, at time.Time) bool {
	valid, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}
