package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/soundprediction/kodabi-gateway/pkg/server/dto"
	"github.com/soundprediction/kodabi-gateway/pkg/types"
)

// QueryExecutor runs a central query against a registry.
type QueryExecutor interface {
	Execute(ctx context.Context, q types.CentralQuery, reg *registry.Registry) (*types.QueryResponse, error)
}

// QueryHandler handles central query requests
type QueryHandler struct {
	registry registry.Provider
	executor QueryExecutor
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(provider registry.Provider, executor QueryExecutor) *QueryHandler {
	return &QueryHandler{
		registry: provider,
		executor: executor,
	}
}

// CentralQuery handles POST /central/query
func (h *QueryHandler) CentralQuery(c *gin.Context) {
	var req types.CentralQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	ctx := context.WithValue(c.Request.Context(), types.ContextKeyRequestSource, types.RequestSourceHTTP)

	reg, err := h.registry.Registry(ctx)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := h.executor.Execute(ctx, req, reg)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, resp)
}
