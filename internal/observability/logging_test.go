package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskTarget(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"email", "someone@example.com", "so*****@example.com"},
		{"short email", "ab@example.com", "**@example.com"},
		{"phone", "5521999999999", "*********9999"},
		{"short value", "abc", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskTarget(tt.target))
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "pk_l****d3f4", MaskAPIKey("pk_live_a1b2c3d3f4"))
	assert.Equal(t, "********", MaskAPIKey("short"))
}
