package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/otpeak/otp-service/internal/redisclient"
	"github.com/otpeak/otp-service/internal/services"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// HealthHandler reports service and dependency health
type HealthHandler struct {
	mongo *mongo.Client
	redis *redisclient.Client
	queue *services.DispatchQueue
}

// NewHealthHandler creates a health handler
func NewHealthHandler(mongoClient *mongo.Client, redisClient *redisclient.Client, queue *services.DispatchQueue) *HealthHandler {
	return &HealthHandler{mongo: mongoClient, redis: redisClient, queue: queue}
}

// Health godoc
// @Summary Health check
// @Description Reports the health of the service and its dependencies
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  map[string]string{},
	}

	if err := h.mongo.Ping(ctx, readpref.Primary()); err != nil {
		resp.Services["mongodb"] = "unhealthy: " + err.Error()
		resp.Status = "unhealthy"
	} else {
		resp.Services["mongodb"] = "healthy"
	}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		resp.Services["redis"] = "unhealthy: " + err.Error()
		resp.Status = "unhealthy"
	} else {
		resp.Services["redis"] = "healthy"
	}

	if h.queue.IsHealthy() {
		resp.Services["dispatch_queue"] = "healthy"
	} else {
		resp.Services["dispatch_queue"] = "degraded"
		resp.Status = "unhealthy"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
