package handlers

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/soundprediction/kodabi-gateway/pkg/server/dto"
)

// HealthProber checks whether a backend answers its health endpoint.
type HealthProber interface {
	Health(ctx context.Context, entry registry.BackendEntry) error
}

// ServicesHandler lists the configured backends
type ServicesHandler struct {
	registry registry.Provider
	prober   HealthProber
}

// NewServicesHandler creates a new services handler
func NewServicesHandler(provider registry.Provider, prober HealthProber) *ServicesHandler {
	return &ServicesHandler{
		registry: provider,
		prober:   prober,
	}
}

// ListServices handles GET /central/services. With ?probe=true every backend's
// health endpoint is called concurrently.
func (h *ServicesHandler) ListServices(c *gin.Context) {
	probe, err := strconv.ParseBool(c.DefaultQuery("probe", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: "probe must be a boolean",
			Code:    http.StatusBadRequest,
		})
		return
	}

	reg, err := h.registry.Registry(c.Request.Context())
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	entries := reg.Entries()
	services := make([]dto.ServiceInfo, len(entries))
	for i, e := range entries {
		services[i] = dto.ServiceInfo{RagName: e.Name, RagIP: e.Host, RagPort: e.Port}
	}

	if probe && h.prober != nil {
		ProbeAll(c.Request.Context(), h.prober, entries, services)
	}

	c.JSON(http.StatusOK, dto.ServicesResponse{Services: services})
}

// ProbeAll fills the health fields of services, which must be index-aligned
// with entries.
func ProbeAll(ctx context.Context, prober HealthProber, entries []registry.BackendEntry, services []dto.ServiceInfo) {
	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := prober.Health(ctx, e)
			healthy := err == nil
			services[i].Healthy = &healthy
			if err != nil {
				services[i].Error = err.Error()
			}
		}()
	}
	wg.Wait()
}
