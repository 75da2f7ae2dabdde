// Package server wires the HTTP routes of the gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/soundprediction/kodabi-gateway/pkg/config"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/soundprediction/kodabi-gateway/pkg/server/handlers"
	"github.com/soundprediction/kodabi-gateway/pkg/tool"
)

// Deps are the collaborators the routes call into.
type Deps struct {
	Registry   registry.Provider
	Dispatcher handlers.QueryExecutor
	Prober     handlers.HealthProber
	Tool       *tool.Service
	Version    string
	Logger     *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	deps       Deps
	router     *gin.Engine
	httpServer *http.Server
}

// New creates a new server instance
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		config: cfg,
		deps:   deps,
	}
}

// Setup builds the router and registers every route.
func (s *Server) Setup() {
	gin.SetMode(s.config.Server.Mode)

	router := gin.New()
	router.Use(requestID(), requestLogger(s.deps.Logger), gin.Recovery())

	healthHandler := handlers.NewHealthHandler(s.deps.Registry)
	queryHandler := handlers.NewQueryHandler(s.deps.Registry, s.deps.Dispatcher)
	servicesHandler := handlers.NewServicesHandler(s.deps.Registry, s.deps.Prober)
	toolHandler := handlers.NewToolHandler(s.deps.Tool)

	// Health
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)

	// Central query
	central := router.Group("/central")
	{
		central.POST("/query", queryHandler.CentralQuery)
		central.GET("/services", servicesHandler.ListServices)
	}

	// Tool protocol
	mcpServer := tool.NewServer(s.deps.Tool, s.deps.Version)
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil)
	router.POST("/mcp/info", toolHandler.Info)
	router.Any("/mcp", gin.WrapH(streamable))

	s.router = router
	s.httpServer = &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the configured router. Setup must have been called.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and blocks until the server stops.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("server not set up")
	}
	s.deps.Logger.Info("Server started", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.deps.Logger.Info("Server stopping")
	return s.httpServer.Shutdown(ctx)
}
