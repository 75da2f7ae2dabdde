// Package tool exposes the query pipeline as an MCP tool.
//
// The tool is scoped to a single backend: every call is dispatched against a
// registry holding exactly one fixed entry, regardless of the general service
// registry the HTTP endpoint uses.
package tool

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/soundprediction/kodabi-gateway/pkg/types"
)

// Name is the registered tool name.
const Name = "software_engineering_rag_query"

const description = "Asks the software engineering RAG service to answer a query from its knowledge corpus."

const instructions = "Provides LightRAG microservice capabilities. Use the " + Name +
	" tool to ask the software engineering knowledge base a question."

// Executor runs a central query against a registry.
type Executor interface {
	Execute(ctx context.Context, q types.CentralQuery, reg *registry.Registry) (*types.QueryResponse, error)
}

// Service converts tool calls into central queries.
type Service struct {
	exec   Executor
	entry  registry.BackendEntry
	reg    *registry.Registry
	logger *slog.Logger
}

// NewService creates a tool service bound to the single backend entry.
func NewService(exec Executor, entry registry.BackendEntry, logger *slog.Logger) *Service {
	return &Service{
		exec:   exec,
		entry:  entry,
		reg:    registry.New(entry),
		logger: logger,
	}
}

// Backend returns the entry the tool dispatches to.
func (s *Service) Backend() registry.BackendEntry {
	return s.entry
}

// Ask dispatches q and wraps the backend answer as a tool result.
// Dispatcher errors are returned unchanged.
func (s *Service) Ask(ctx context.Context, q types.ToolQuery) (*mcp.CallToolResult, error) {
	ctx = context.WithValue(ctx, types.ContextKeyRequestSource, types.RequestSourceTool)

	s.logger.DebugContext(ctx, "Tool query received", "rag_name", q.RagName)
	resp, err := s.exec.Execute(ctx, q.CentralQuery(), s.reg)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: resp.Response}},
	}, nil
}

// handle is the MCP tool handler. Dispatch failures are reported to the
// caller as error results rather than protocol errors.
func (s *Service) handle(ctx context.Context, req *mcp.CallToolRequest, in types.ToolQuery) (*mcp.CallToolResult, any, error) {
	result, err := s.Ask(ctx, in)
	if err != nil {
		s.logger.WarnContext(ctx, "Tool query failed", "rag_name", in.RagName, "error", err)
		return ErrorResult(err), nil, nil
	}
	return result, nil, nil
}

// ErrorResult wraps err as a tool error result.
func ErrorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

// NewServer creates an MCP server with the query tool registered.
func NewServer(s *Service, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "kodabi-gateway",
		Version: version,
	}, &mcp.ServerOptions{
		Instructions: instructions,
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        Name,
		Description: description,
	}, s.handle)

	return server
}
