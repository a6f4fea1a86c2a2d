package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/otpeak/otp-service/internal/config"
	"github.com/otpeak/otp-service/internal/models"
	"github.com/otpeak/otp-service/internal/services"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProjectLimits reports the per-minute request limit configured on a project.
// 0 means the project carries no override.
type ProjectLimits interface {
	RateLimitOverride(ctx context.Context, clientID primitive.ObjectID, projectID string) int
}

// RateLimit enforces the fixed-window request budget on OTP endpoints.
// A project with its own rate_limit_per_minute gets a dedicated window keyed
// by API key and project; otherwise every project of a client shares one
// window under the client's limit, matching how the budget is sold.
func RateLimit(limiter *services.RateLimiter, limits ProjectLimits) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(config.AppConfig.APIKeyHeader)
		if apiKey == "" {
			// auth middleware rejects these; nothing to count
			c.Next()
			return
		}

		key := apiKey
		limit := 0
		client, hasClient := ClientFromContext(c)
		if hasClient {
			limit = client.RateLimitPerMinute
		}

		if projectID := c.Param("projectId"); projectID != "" && hasClient && limits != nil {
			if override := limits.RateLimitOverride(c.Request.Context(), client.ID, projectID); override > 0 {
				key = apiKey + ":" + projectID
				limit = override
			}
		}

		if !limiter.Allow(c.Request.Context(), key, limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": models.ErrRateLimitExceeded.Error(),
			})
			return
		}

		c.Next()
	}
}
