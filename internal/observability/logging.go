package observability

import (
	"strings"

	"github.com/otpeak/otp-service/internal/logging"
	"go.uber.org/zap"
)

// Logger returns the global logger instance
func Logger() *zap.Logger {
	return logging.Logger
}

// MaskTarget masks a delivery target (email address or phone number) for logging
func MaskTarget(target string) string {
	if at := strings.Index(target, "@"); at > 0 {
		local := target[:at]
		if len(local) <= 2 {
			return "**" + target[at:]
		}
		return local[:2] + strings.Repeat("*", len(local)-2) + target[at:]
	}
	if len(target) <= 4 {
		return strings.Repeat("*", len(target))
	}
	return strings.Repeat("*", len(target)-4) + target[len(target)-4:]
}

// MaskAPIKey masks an API key for logging
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
