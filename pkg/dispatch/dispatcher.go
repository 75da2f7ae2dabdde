// Package dispatch resolves a named RAG backend and forwards a query to it.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/soundprediction/kodabi-gateway/pkg/errs"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/soundprediction/kodabi-gateway/pkg/types"
)

// Querier performs the outbound call to a resolved backend.
type Querier interface {
	Query(ctx context.Context, entry registry.BackendEntry, req types.QueryRequest) (*types.QueryResponse, error)
}

// Dispatcher executes central queries. It holds no per-request state.
type Dispatcher struct {
	querier Querier
	logger  *slog.Logger
}

// New creates a dispatcher that sends queries through querier.
func New(querier Querier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		querier: querier,
		logger:  logger,
	}
}

// Execute resolves q.RagName in reg and performs one outbound query.
// Errors are *errs.ServiceError of kind ValidationFailed, NotFound or QueryFailed.
func (d *Dispatcher) Execute(ctx context.Context, q types.CentralQuery, reg *registry.Registry) (*types.QueryResponse, error) {
	if q.RagName == "" {
		return nil, errs.Service(errs.ValidationFailed, nil, "Rag service is empty: %s", q.RagName)
	}

	entry, ok := reg.FindByName(q.RagName)
	if !ok {
		return nil, errs.Service(errs.NotFound, nil, "Service not found: %s", q.RagName)
	}

	logger := d.logger.With("rag_name", entry.Name, "address", entry.Address())
	if id, ok := ctx.Value(types.ContextKeyRequestID).(string); ok {
		logger = logger.With("request_id", id)
	}
	if src, ok := ctx.Value(types.ContextKeyRequestSource).(string); ok {
		logger = logger.With("source", src)
	}

	start := time.Now()
	resp, err := d.querier.Query(ctx, entry, q.Query)
	elapsed := time.Since(start)
	if err != nil {
		logger.ErrorContext(ctx, "Query dispatch failed", "duration", elapsed, "error", err)
		if errs.IsKind(err, errs.ValidationFailed) {
			return nil, errs.Service(errs.ValidationFailed, err, "%s: %v", q.RagName, err)
		}
		return nil, errs.Service(errs.QueryFailed, err, "%v", err)
	}

	logger.InfoContext(ctx, "Query dispatch completed", "duration", elapsed, "references", len(resp.References))
	return resp, nil
}
