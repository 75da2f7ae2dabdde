package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/soundprediction/kodabi-gateway/pkg/server/dto"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	registry registry.Provider
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(provider registry.Provider) *HealthHandler {
	return &HealthHandler{
		registry: provider,
	}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// ReadinessCheck handles GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	reg, err := h.registry.Registry(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "registry_unavailable",
			Message: err.Error(),
			Code:    http.StatusServiceUnavailable,
		})
		return
	}

	c.JSON(http.StatusOK, dto.ReadinessResponse{
		Status:   "ready",
		Services: reg.Len(),
	})
}
