package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/otpeak/otp-service/internal/models"
)

var codeSpace = new(big.Int).Exp(big.NewInt(10), big.NewInt(models.CodeLength), nil)

// GenerateVerificationCode generates a fixed-width numeric code using a
// cryptographically secure random source
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", models.CodeLength, n), nil
}
