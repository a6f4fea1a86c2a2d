package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	os.Clearenv()

	err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, AppConfig)

	assert.Equal(t, 8080, AppConfig.Port)
	assert.Equal(t, "development", AppConfig.Environment)
	assert.Equal(t, "mongodb://localhost:27017", AppConfig.MongoURI)
	assert.Equal(t, "otp_service", AppConfig.MongoDatabase)
	assert.Equal(t, "clients", AppConfig.ClientCollection)
	assert.Equal(t, "projects", AppConfig.ProjectCollection)
	assert.Equal(t, "otps", AppConfig.OTPCollection)
	assert.Equal(t, "X-API-Key", AppConfig.APIKeyHeader)
	assert.Equal(t, 5*time.Minute, AppConfig.OTPExpiration)
	assert.Equal(t, time.Minute, AppConfig.RateLimitWindow)
	assert.Equal(t, 5, AppConfig.RateLimitMaxRequests)
	assert.False(t, AppConfig.RateLimitUseRedis)
	assert.Equal(t, 4, AppConfig.DispatchWorkers)
	assert.Equal(t, 256, AppConfig.DispatchQueueSize)
	assert.False(t, AppConfig.WhatsAppEnabled)
	assert.False(t, AppConfig.MailEnabled)
	assert.Empty(t, AppConfig.AdminToken)
}

func TestLoadConfig_Overrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("PORT", "9090")
	os.Setenv("OTP_EXPIRATION", "45s")
	os.Setenv("RATE_LIMIT_MAX_REQUESTS", "10")
	os.Setenv("RATE_LIMIT_USE_REDIS", "true")
	os.Setenv("ADMIN_TOKEN", "secret")
	defer os.Clearenv()

	err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, AppConfig.Port)
	assert.Equal(t, 45*time.Second, AppConfig.OTPExpiration)
	assert.Equal(t, 10, AppConfig.RateLimitMaxRequests)
	assert.True(t, AppConfig.RateLimitUseRedis)
	assert.Equal(t, "secret", AppConfig.AdminToken)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"invalid port", "PORT", "not-a-number"},
		{"invalid redis db", "REDIS_DB", "abc"},
		{"invalid otp expiration", "OTP_EXPIRATION", "5 parsecs"},
		{"invalid rate limit window", "RATE_LIMIT_WINDOW", "soon"},
		{"invalid dispatch workers", "DISPATCH_WORKERS", "many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tt.key, tt.value)
			defer os.Clearenv()

			err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
