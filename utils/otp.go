package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"
)

// GenerateOTP returns a numeric one-time code of the given length drawn
// from a cryptographically secure source. Leading zeros are preserved.
func GenerateOTP(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("otp length must be positive, got %d", length)
	}

	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("could not read random source: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}

	return string(digits), nil
}

// ValidateOTP reports whether the provided code matches the expected one
// and has not expired. Expiry is checked first: an expired code always
// fails, correct or not. The comparison itself is constant-time.
func ValidateOTP(provided, expected string, expiresAt, now time.Time) bool {
	if provided == "" || expected == "" || expiresAt.IsZero() {
		return false
	}

	if now.After(expiresAt) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
