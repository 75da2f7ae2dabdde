// Package backend performs the outbound HTTP calls to RAG backends.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/soundprediction/kodabi-gateway/pkg/errs"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/soundprediction/kodabi-gateway/pkg/types"
)

// Config configures the outbound client.
type Config struct {
	// Timeout bounds one outbound call. Zero waits for the transport to give up.
	Timeout time.Duration
	Breaker BreakerConfig
}

// BreakerConfig configures the optional per-backend circuit breaker.
type BreakerConfig struct {
	Enabled bool
	// Failures is the number of consecutive failures that opens the breaker.
	Failures uint32
	// OpenTimeout is how long an open breaker rejects calls before probing again.
	OpenTimeout time.Duration
}

// Client sends queries to backends. It is safe for concurrent use and makes
// exactly one attempt per call.
type Client struct {
	http    *http.Client
	breaker BreakerConfig
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient creates a client sharing one http.Client across all backends.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  cfg.Breaker,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// QueryURL returns the query endpoint of entry.
func QueryURL(entry registry.BackendEntry) string {
	return fmt.Sprintf("http://%s:%s/query", entry.Host, entry.Port)
}

// HealthURL returns the health endpoint of entry.
func HealthURL(entry registry.BackendEntry) string {
	return fmt.Sprintf("http://%s:%s/health", entry.Host, entry.Port)
}

// Query posts req to entry's /query endpoint and decodes the reply.
// Failures are *errs.HandlerError: ValidationFailed when the entry has no
// host or port (no I/O is attempted), ProcessFailed otherwise.
func (c *Client) Query(ctx context.Context, entry registry.BackendEntry, req types.QueryRequest) (*types.QueryResponse, error) {
	if entry.Host == "" || entry.Port == "" {
		return nil, errs.Handler(errs.ValidationFailed, nil,
			"Check service information %s=%s:%s", entry.Name, entry.Host, entry.Port)
	}

	if !c.breaker.Enabled {
		return c.query(ctx, entry, req)
	}

	out, err := c.breakerFor(entry).Execute(func() (interface{}, error) {
		return c.query(ctx, entry, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errs.Handler(errs.ProcessFailed, err, "Query request failed: backend %s unavailable: %v", entry.Name, err)
		}
		return nil, err
	}
	return out.(*types.QueryResponse), nil
}

func (c *Client) query(ctx context.Context, entry registry.BackendEntry, req types.QueryRequest) (*types.QueryResponse, error) {
	url := QueryURL(entry)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Handler(errs.ProcessFailed, err, "Failed to encode query request: %v", err)
	}

	c.logger.Debug("Sending query to backend", "url", url, "body", string(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errs.Handler(errs.ProcessFailed, err, "Query request failed: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errs.Handler(errs.ProcessFailed, err, "Query request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Handler(errs.ProcessFailed, err, "Failed to read response body: %v", err)
	}

	c.logger.Debug("Backend replied", "url", url, "status", resp.StatusCode, "body", string(raw))

	var out types.QueryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errs.Handler(errs.ProcessFailed, err,
			"Failed to deserialize response into QueryResponse: %v (status %d)", err, resp.StatusCode)
	}
	return &out, nil
}

func (c *Client) breakerFor(entry registry.BackendEntry) *gobreaker.CircuitBreaker {
	key := entry.Address()

	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[key]; ok {
		return cb
	}

	failures := c.breaker.Failures
	if failures == 0 {
		failures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    key,
		Timeout: c.breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Backend circuit breaker state changed", "backend", name, "from", from.String(), "to", to.String())
		},
	})
	c.breakers[key] = cb
	return cb
}

// Health probes entry's /health endpoint. Failures are *errs.ExternalCallError.
func (c *Client) Health(ctx context.Context, entry registry.BackendEntry) error {
	if entry.Host == "" || entry.Port == "" {
		return errs.External(errs.ValidationFailed, nil,
			"Check service information %s=%s:%s", entry.Name, entry.Host, entry.Port)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, HealthURL(entry), nil)
	if err != nil {
		return errs.External(errs.HealthFailed, err, "%s: %v", entry.Name, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.External(errs.HealthFailed, err, "%s: %v", entry.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errs.External(errs.ResponseFailed, nil, "%s: unexpected status %d", entry.Name, resp.StatusCode)
	}
	return nil
}
