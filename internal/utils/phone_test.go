package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeWhatsAppTarget(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		countryCode string
		want        string
		wantErr     bool
	}{
		{"e164 input", "+5521999999999", "", "5521999999999", false},
		{"national with dial code", "21999999999", "55", "5521999999999", false},
		{"dial code with plus", "21999999999", "+55", "5521999999999", false},
		{"missing country code", "21999999999", "", "", true},
		{"empty target", "", "55", "", true},
		{"too short", "123", "55", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeWhatsAppTarget(tt.target, tt.countryCode)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
