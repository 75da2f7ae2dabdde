package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/soundprediction/kodabi-gateway/pkg/server/dto"
	"github.com/soundprediction/kodabi-gateway/pkg/types"
)

// ToolAsker answers a tool query with a tool result.
type ToolAsker interface {
	Ask(ctx context.Context, q types.ToolQuery) (*mcp.CallToolResult, error)
}

// ToolHandler exposes the query tool over plain HTTP
type ToolHandler struct {
	tool ToolAsker
}

// NewToolHandler creates a new tool handler
func NewToolHandler(tool ToolAsker) *ToolHandler {
	return &ToolHandler{
		tool: tool,
	}
}

// Info handles POST /mcp/info
func (h *ToolHandler) Info(c *gin.Context) {
	var req types.ToolQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Code:    http.StatusBadRequest,
		})
		return
	}

	result, err := h.tool.Ask(c.Request.Context(), req)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}
