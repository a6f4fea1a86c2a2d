package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/otpeak/otp-service/internal/middleware"
	"github.com/otpeak/otp-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OTPEngine is the issuance and verification surface consumed by the handlers
type OTPEngine interface {
	Send(ctx context.Context, project *models.Project, req models.SendOTPRequest) (*models.SendOTPResponse, error)
	Verify(ctx context.Context, project *models.Project, req models.VerifyOTPRequest) (*models.VerifyOTPResponse, error)
}

// ProjectResolver loads a project for an OTP operation, enforcing ownership
type ProjectResolver interface {
	ResolveForOTP(ctx context.Context, projectID string, clientID primitive.ObjectID) (*models.Project, error)
}

// OTPHandler serves the OTP issuance and verification endpoints
type OTPHandler struct {
	engine   OTPEngine
	projects ProjectResolver
}

// NewOTPHandler creates an OTP handler
func NewOTPHandler(engine OTPEngine, projects ProjectResolver) *OTPHandler {
	return &OTPHandler{engine: engine, projects: projects}
}

// Send godoc
// @Summary Send a one-time password
// @Description Generates a verification code for the target and queues its delivery over the requested channel. The code is never part of the response.
// @Tags otp
// @Accept json
// @Produce json
// @Param projectId path string true "Project ID"
// @Param data body models.SendOTPRequest true "Delivery target and channel"
// @Security ApiKeyAuth
// @Success 200 {object} models.SendOTPResponse
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse "Insufficient tokens"
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse "Rate limit exceeded"
// @Failure 503 {object} ErrorResponse "Delivery queue unavailable"
// @Router /projects/{projectId}/otp/send [post]
func (h *OTPHandler) Send(c *gin.Context) {
	client, ok := middleware.ClientFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or missing API key"})
		return
	}

	var req models.SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	project, err := h.projects.ResolveForOTP(c.Request.Context(), c.Param("projectId"), client.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp, err := h.engine.Send(c.Request.Context(), project, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Verify godoc
// @Summary Verify a one-time password
// @Description Checks a submitted code against the pending codes for the target. A valid code is consumed and cannot be verified again.
// @Tags otp
// @Accept json
// @Produce json
// @Param projectId path string true "Project ID"
// @Param data body models.VerifyOTPRequest true "Target and code"
// @Security ApiKeyAuth
// @Success 200 {object} models.VerifyOTPResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse "Rate limit exceeded"
// @Router /projects/{projectId}/otp/verify [post]
func (h *OTPHandler) Verify(c *gin.Context) {
	client, ok := middleware.ClientFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or missing API key"})
		return
	}

	var req models.VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	project, err := h.projects.ResolveForOTP(c.Request.Context(), c.Param("projectId"), client.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp, err := h.engine.Verify(c.Request.Context(), project, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
