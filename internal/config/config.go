package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	// Server configuration
	Port        int    `json:"port"`
	Environment string `json:"environment"`

	// MongoDB configuration
	MongoURI      string `json:"mongo_uri"`
	MongoDatabase string `json:"mongo_database"`

	// Redis configuration
	RedisURI      string `json:"redis_uri"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Collection names
	ClientCollection  string `json:"mongo_client_collection"`
	ProjectCollection string `json:"mongo_project_collection"`
	OTPCollection     string `json:"mongo_otp_collection"`

	// Authentication configuration
	APIKeyHeader   string        `json:"api_key_header"`
	APIKeyCacheTTL time.Duration `json:"api_key_cache_ttl"`
	AdminToken     string        `json:"-"`

	// OTP configuration
	OTPExpiration      time.Duration `json:"otp_expiration"`
	OTPCleanupInterval time.Duration `json:"otp_cleanup_interval"`

	// Rate limiting configuration
	RateLimitWindow      time.Duration `json:"rate_limit_window"`
	RateLimitMaxRequests int           `json:"rate_limit_max_requests"`
	RateLimitUseRedis    bool          `json:"rate_limit_use_redis"`

	// Dispatch queue configuration
	DispatchWorkers   int `json:"dispatch_workers"`
	DispatchQueueSize int `json:"dispatch_queue_size"`

	// Mail delivery configuration
	MailServiceURL string `json:"mail_service_url"`
	MailEnabled    bool   `json:"mail_enabled"`

	// WhatsApp delivery configuration
	WhatsAppAPIURL  string `json:"whatsapp_api_url"`
	WhatsAppAPIKey  string `json:"-"`
	WhatsAppEnabled bool   `json:"whatsapp_enabled"`

	// Tracing configuration
	TracingEnabled  bool   `json:"tracing_enabled"`
	TracingEndpoint string `json:"tracing_endpoint"`
}

var (
	AppConfig *Config
)

// LoadConfig loads configuration from environment variables
func LoadConfig() error {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	apiKeyCacheTTL, err := time.ParseDuration(getEnvOrDefault("API_KEY_CACHE_TTL", "1m"))
	if err != nil {
		return fmt.Errorf("invalid API_KEY_CACHE_TTL: %w", err)
	}

	otpExpiration, err := time.ParseDuration(getEnvOrDefault("OTP_EXPIRATION", "5m"))
	if err != nil {
		return fmt.Errorf("invalid OTP_EXPIRATION: %w", err)
	}

	otpCleanupInterval, err := time.ParseDuration(getEnvOrDefault("OTP_CLEANUP_INTERVAL", "10m"))
	if err != nil {
		return fmt.Errorf("invalid OTP_CLEANUP_INTERVAL: %w", err)
	}

	rateLimitWindow, err := time.ParseDuration(getEnvOrDefault("RATE_LIMIT_WINDOW", "1m"))
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}

	rateLimitMaxRequests, err := strconv.Atoi(getEnvOrDefault("RATE_LIMIT_MAX_REQUESTS", "5"))
	if err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_MAX_REQUESTS: %w", err)
	}

	dispatchWorkers, err := strconv.Atoi(getEnvOrDefault("DISPATCH_WORKERS", "4"))
	if err != nil {
		return fmt.Errorf("invalid DISPATCH_WORKERS: %w", err)
	}

	dispatchQueueSize, err := strconv.Atoi(getEnvOrDefault("DISPATCH_QUEUE_SIZE", "256"))
	if err != nil {
		return fmt.Errorf("invalid DISPATCH_QUEUE_SIZE: %w", err)
	}

	// Admin endpoints are disabled unless a token is configured
	adminToken := os.Getenv("ADMIN_TOKEN")

	AppConfig = &Config{
		// Server configuration
		Port:        port,
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),

		// MongoDB configuration
		MongoURI:      getEnvOrDefault("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnvOrDefault("MONGODB_DATABASE", "otp_service"),

		// Redis configuration
		RedisURI:      getEnvOrDefault("REDIS_URI", "localhost:6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       redisDB,

		// Collection names
		ClientCollection:  getEnvOrDefault("MONGODB_CLIENT_COLLECTION", "clients"),
		ProjectCollection: getEnvOrDefault("MONGODB_PROJECT_COLLECTION", "projects"),
		OTPCollection:     getEnvOrDefault("MONGODB_OTP_COLLECTION", "otps"),

		// Authentication configuration
		APIKeyHeader:   getEnvOrDefault("API_KEY_HEADER", "X-API-Key"),
		APIKeyCacheTTL: apiKeyCacheTTL,
		AdminToken:     adminToken,

		// OTP configuration
		OTPExpiration:      otpExpiration,
		OTPCleanupInterval: otpCleanupInterval,

		// Rate limiting configuration
		RateLimitWindow:      rateLimitWindow,
		RateLimitMaxRequests: rateLimitMaxRequests,
		RateLimitUseRedis:    getEnvOrDefault("RATE_LIMIT_USE_REDIS", "false") == "true",

		// Dispatch queue configuration
		DispatchWorkers:   dispatchWorkers,
		DispatchQueueSize: dispatchQueueSize,

		// Mail delivery configuration
		MailServiceURL: getEnvOrDefault("MAIL_SERVICE_URL", "http://localhost:3001"),
		MailEnabled:    getEnvOrDefault("MAIL_ENABLED", "false") == "true",

		// WhatsApp delivery configuration
		WhatsAppAPIURL:  getEnvOrDefault("WHATSAPP_API_URL", "http://localhost:3002"),
		WhatsAppAPIKey:  getEnvOrDefault("WHATSAPP_API_KEY", ""),
		WhatsAppEnabled: getEnvOrDefault("WHATSAPP_ENABLED", "false") == "true",

		// Tracing configuration
		TracingEnabled:  getEnvOrDefault("TRACING_ENABLED", "false") == "true",
		TracingEndpoint: getEnvOrDefault("TRACING_ENDPOINT", "localhost:4317"),
	}

	return nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
