package utils

import (
	"testing"

	"github.com/otpeak/otp-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerificationCode(t *testing.T) {
	code, err := GenerateVerificationCode()
	require.NoError(t, err)
	assert.Len(t, code, models.CodeLength)
	assert.Regexp(t, `^[0-9]{6}$`, code)
}

func TestGenerateVerificationCode_Varies(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateVerificationCode()
		require.NoError(t, err)
		assert.Len(t, code, models.CodeLength)
		seen[code] = true
	}
	// 100 draws from a million-value space should not collapse to a handful
	assert.Greater(t, len(seen), 90)
}
