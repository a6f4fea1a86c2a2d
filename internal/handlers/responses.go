package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/otpeak/otp-service/internal/logging"
	"github.com/otpeak/otp-service/internal/models"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// respondError maps domain errors onto HTTP statuses. Unknown errors are
// logged and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "project not found"})
	case errors.Is(err, models.ErrNotOwned):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "project does not belong to this client"})
	case errors.Is(err, models.ErrProjectInactive):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "project is deactivated"})
	case errors.Is(err, models.ErrClientNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "client not found"})
	case errors.Is(err, models.ErrInsufficientTokens):
		c.JSON(http.StatusPaymentRequired, ErrorResponse{Error: "insufficient tokens"})
	case errors.Is(err, models.ErrInvalidChannel):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid delivery channel"})
	case errors.Is(err, models.ErrInvalidTarget):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid delivery target"})
	case errors.Is(err, models.ErrInvalidTokens):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "token amount must be positive"})
	case errors.Is(err, models.ErrDispatchFailed):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "delivery queue unavailable, no token was charged"})
	default:
		logging.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
