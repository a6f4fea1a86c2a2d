package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/otpeak/otp-service/internal/config"
	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/models"
	"github.com/otpeak/otp-service/internal/observability"
	"github.com/otpeak/otp-service/internal/services"
	"go.uber.org/zap"
)

const clientContextKey = "client"

// APIKeyAuth authenticates requests by the API key header and attaches the
// resolved client to the request context
func APIKeyAuth(resolver services.ClientResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(config.AppConfig.APIKeyHeader)

		client, err := resolver.ResolveClient(c.Request.Context(), apiKey)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrUnauthorized):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			case errors.Is(err, models.ErrClientInactive):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "client is deactivated"})
			default:
				logging.Logger.Error("API key resolution failed",
					zap.String("api_key", observability.MaskAPIKey(apiKey)),
					zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
			return
		}

		c.Set(clientContextKey, client)
		c.Next()
	}
}

// ClientFromContext returns the authenticated client attached by APIKeyAuth
func ClientFromContext(c *gin.Context) (*models.Client, bool) {
	v, ok := c.Get(clientContextKey)
	if !ok {
		return nil, false
	}
	client, ok := v.(*models.Client)
	return client, ok
}

// AdminAuth guards operator endpoints with a static bearer token. An empty
// configured token disables the admin surface entirely.
func AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := config.AppConfig.AdminToken
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin API is disabled"})
			return
		}

		header := c.GetHeader("Authorization")
		provided := strings.TrimPrefix(header, "Bearer ")
		if header == provided || provided != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}

		c.Next()
	}
}
