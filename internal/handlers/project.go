package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/otpeak/otp-service/internal/middleware"
	"github.com/otpeak/otp-service/internal/models"
	"github.com/otpeak/otp-service/internal/services"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OTPAnalytics is the read side of the OTP store used for reporting
type OTPAnalytics interface {
	ListRecords(ctx context.Context, projectID string, page, limit int64) ([]models.OTPRecordView, int64, error)
	Stats(ctx context.Context, projectID string) (*models.OTPStats, error)
}

// ProjectHandler serves the client-scoped project management endpoints
type ProjectHandler struct {
	projects  *services.ProjectService
	analytics OTPAnalytics
}

// NewProjectHandler creates a project handler
func NewProjectHandler(projects *services.ProjectService, analytics OTPAnalytics) *ProjectHandler {
	return &ProjectHandler{projects: projects, analytics: analytics}
}

func (h *ProjectHandler) client(c *gin.Context) (primitive.ObjectID, bool) {
	client, ok := middleware.ClientFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or missing API key"})
		return primitive.NilObjectID, false
	}
	return client.ID, true
}

// resolveOwned loads a project for management endpoints; unlike OTP
// operations, deactivated projects remain manageable by their owner
func (h *ProjectHandler) resolveOwned(c *gin.Context, clientID primitive.ObjectID) (*models.Project, bool) {
	project, err := h.projects.GetByProjectID(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if project.ClientID != clientID {
		respondError(c, models.ErrNotOwned)
		return nil, false
	}
	return project, true
}

// Create godoc
// @Summary Create a project
// @Description Registers a new project under the authenticated client with a fresh token budget and default templates
// @Tags projects
// @Accept json
// @Produce json
// @Param data body models.ProjectCreateRequest true "Project settings"
// @Security ApiKeyAuth
// @Success 201 {object} models.ProjectResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /projects [post]
func (h *ProjectHandler) Create(c *gin.Context) {
	clientID, ok := h.client(c)
	if !ok {
		return
	}

	var req models.ProjectCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	project, err := h.projects.Create(c.Request.Context(), clientID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, project.ToResponse())
}

// List godoc
// @Summary List projects
// @Description Lists the authenticated client's projects
// @Tags projects
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {array} models.ProjectResponse
// @Failure 401 {object} ErrorResponse
// @Router /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	clientID, ok := h.client(c)
	if !ok {
		return
	}

	projects, err := h.projects.List(c.Request.Context(), clientID)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.ProjectResponse, 0, len(projects))
	for i := range projects {
		responses = append(responses, projects[i].ToResponse())
	}
	c.JSON(http.StatusOK, responses)
}

// Get godoc
// @Summary Get a project
// @Description Returns a single project with its token balance
// @Tags projects
// @Produce json
// @Param projectId path string true "Project ID"
// @Security ApiKeyAuth
// @Success 200 {object} models.ProjectResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /projects/{projectId} [get]
func (h *ProjectHandler) Get(c *gin.Context) {
	clientID, ok := h.client(c)
	if !ok {
		return
	}

	project, ok := h.resolveOwned(c, clientID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, project.ToResponse())
}

// Update godoc
// @Summary Update a project
// @Description Updates the mutable project settings; omitted fields are left unchanged
// @Tags projects
// @Accept json
// @Produce json
// @Param projectId path string true "Project ID"
// @Param data body models.ProjectUpdateRequest true "Fields to update"
// @Security ApiKeyAuth
// @Success 200 {object} models.ProjectResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /projects/{projectId} [patch]
func (h *ProjectHandler) Update(c *gin.Context) {
	clientID, ok := h.client(c)
	if !ok {
		return
	}

	var req models.ProjectUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	project, err := h.projects.Update(c.Request.Context(), c.Param("projectId"), clientID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project.ToResponse())
}

// AddTokens godoc
// @Summary Add tokens to a project
// @Description Credits additional OTP tokens to the project budget
// @Tags projects
// @Accept json
// @Produce json
// @Param projectId path string true "Project ID"
// @Param data body models.AddTokensRequest true "Token amount"
// @Security ApiKeyAuth
// @Success 200 {object} models.ProjectResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /projects/{projectId}/tokens [post]
func (h *ProjectHandler) AddTokens(c *gin.Context) {
	clientID, ok := h.client(c)
	if !ok {
		return
	}

	var req models.AddTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	project, err := h.projects.AddTokens(c.Request.Context(), c.Param("projectId"), clientID, req.Tokens)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project.ToResponse())
}

// SetActive godoc
// @Summary Activate or deactivate a project
// @Description Toggles whether the project accepts OTP operations
// @Tags projects
// @Accept json
// @Produce json
// @Param projectId path string true "Project ID"
// @Param data body models.ProjectActiveRequest true "Active flag"
// @Security ApiKeyAuth
// @Success 200 {object} models.ProjectResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /projects/{projectId}/active [put]
func (h *ProjectHandler) SetActive(c *gin.Context) {
	clientID, ok := h.client(c)
	if !ok {
		return
	}

	var req models.ProjectActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	project, err := h.projects.SetActive(c.Request.Context(), c.Param("projectId"), clientID, *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project.ToResponse())
}

// Records godoc
// @Summary List OTP records
// @Description Lists the project's OTP issuance records, newest first. Codes are never included.
// @Tags analytics
// @Produce json
// @Param projectId path string true "Project ID"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(50)
// @Security ApiKeyAuth
// @Success 200 {object} handlers.RecordsResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /projects/{projectId}/otp/records [get]
func (h *ProjectHandler) Records(c *gin.Context) {
	clientID, ok := h.client(c)
	if !ok {
		return
	}

	project, ok := h.resolveOwned(c, clientID)
	if !ok {
		return
	}

	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	records, total, err := h.analytics.ListRecords(c.Request.Context(), project.ProjectID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RecordsResponse{
		Records: records,
		Total:   total,
		Page:    page,
		Limit:   limit,
	})
}

// Stats godoc
// @Summary Project OTP statistics
// @Description Returns issuance and verification counts for the project
// @Tags analytics
// @Produce json
// @Param projectId path string true "Project ID"
// @Security ApiKeyAuth
// @Success 200 {object} models.OTPStats
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /projects/{projectId}/otp/stats [get]
func (h *ProjectHandler) Stats(c *gin.Context) {
	clientID, ok := h.client(c)
	if !ok {
		return
	}

	project, ok := h.resolveOwned(c, clientID)
	if !ok {
		return
	}

	stats, err := h.analytics.Stats(c.Request.Context(), project.ProjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RecordsResponse is a paginated OTP record listing
type RecordsResponse struct {
	Records []models.OTPRecordView `json:"records"`
	Total   int64                  `json:"total"`
	Page    int64                  `json:"page"`
	Limit   int64                  `json:"limit"`
}
