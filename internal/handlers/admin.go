package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/otpeak/otp-service/internal/models"
	"github.com/otpeak/otp-service/internal/services"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AdminHandler serves the operator endpoints behind the admin token
type AdminHandler struct {
	clients *services.ClientService
	sweeper *services.CleanupSweeper
	queue   *services.DispatchQueue
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(clients *services.ClientService, sweeper *services.CleanupSweeper, queue *services.DispatchQueue) *AdminHandler {
	return &AdminHandler{clients: clients, sweeper: sweeper, queue: queue}
}

// CreateClient godoc
// @Summary Register a client
// @Description Registers a new client and returns its API key. The key is only returned once.
// @Tags admin
// @Accept json
// @Produce json
// @Param data body models.ClientCreateRequest true "Client details"
// @Security AdminAuth
// @Success 201 {object} models.ClientResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /admin/clients [post]
func (h *AdminHandler) CreateClient(c *gin.Context) {
	var req models.ClientCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	client, err := h.clients.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, client.ToResponse(true))
}

// ListClients godoc
// @Summary List clients
// @Description Lists all registered clients without their API keys
// @Tags admin
// @Produce json
// @Security AdminAuth
// @Success 200 {array} models.ClientResponse
// @Failure 401 {object} ErrorResponse
// @Router /admin/clients [get]
func (h *AdminHandler) ListClients(c *gin.Context) {
	clients, err := h.clients.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.ClientResponse, 0, len(clients))
	for i := range clients {
		responses = append(responses, clients[i].ToResponse(false))
	}
	c.JSON(http.StatusOK, responses)
}

// SetClientActive godoc
// @Summary Activate or deactivate a client
// @Description Toggles a client's access; deactivation invalidates the cached credential
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Client ID"
// @Param data body models.ClientActiveRequest true "Active flag"
// @Security AdminAuth
// @Success 200 {object} models.ClientResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/clients/{id}/active [put]
func (h *AdminHandler) SetClientActive(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid client id"})
		return
	}

	var req models.ClientActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	client, err := h.clients.SetActive(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client.ToResponse(false))
}

// RotateClientKey godoc
// @Summary Rotate a client's API key
// @Description Replaces the client's API key and returns the new one. The old key stops working immediately.
// @Tags admin
// @Produce json
// @Param id path string true "Client ID"
// @Security AdminAuth
// @Success 200 {object} models.ClientResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /admin/clients/{id}/rotate-key [post]
func (h *AdminHandler) RotateClientKey(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid client id"})
		return
	}

	client, err := h.clients.RotateKey(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client.ToResponse(true))
}

// Cleanup godoc
// @Summary Purge expired OTP records
// @Description Runs an immediate purge of expired unverified records, ahead of the periodic sweeper
// @Tags admin
// @Produce json
// @Security AdminAuth
// @Success 200 {object} handlers.CleanupResponse
// @Failure 401 {object} ErrorResponse
// @Router /admin/cleanup [post]
func (h *AdminHandler) Cleanup(c *gin.Context) {
	removed, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, CleanupResponse{Removed: removed})
}

// QueueStats godoc
// @Summary Dispatch queue statistics
// @Description Returns delivery queue depth and processing counters
// @Tags admin
// @Produce json
// @Security AdminAuth
// @Success 200 {object} services.DispatchStats
// @Failure 401 {object} ErrorResponse
// @Router /admin/queue/stats [get]
func (h *AdminHandler) QueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.GetStats())
}

// CleanupResponse reports the outcome of a manual purge
type CleanupResponse struct {
	Removed int64 `json:"removed"`
}
