package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soundprediction/kodabi-gateway/pkg/errs"
	"github.com/soundprediction/kodabi-gateway/pkg/registry"
	"github.com/soundprediction/kodabi-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// entryFor returns a registry entry pointing at srv.
func entryFor(t *testing.T, name string, srv *httptest.Server) registry.BackendEntry {
	t.Helper()
	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	return registry.BackendEntry{Name: name, Host: host, Port: port}
}

// closedEntry returns an entry for an address nothing listens on.
func closedEntry(t *testing.T) registry.BackendEntry {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	entry := entryFor(t, "gone", srv)
	srv.Close()
	return entry
}

func TestQuerySendsRequestAndParsesReply(t *testing.T) {
	var got types.QueryRequest
	var gotPath, gotMethod, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod, gotContentType = r.URL.Path, r.Method, r.Header.Get("Content-Type")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"response":"pong","references":[{"reference_id":"1","file_path":"a.md"}]}`)
	}))
	defer srv.Close()

	client := NewClient(Config{}, testLogger())
	req := types.NewQueryRequest("ping").WithMode(types.QueryModeMix)

	resp, err := client.Query(context.Background(), entryFor(t, "svc", srv), req)
	require.NoError(t, err)

	assert.Equal(t, "/query", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, req, got)
	assert.Equal(t, &types.QueryResponse{
		Response:   "pong",
		References: []types.Reference{{ReferenceID: "1", FilePath: "a.md"}},
	}, resp)
}

func TestQueryRejectsIncompleteEntryWithoutIO(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()
	good := entryFor(t, "svc", srv)

	tests := []struct {
		name  string
		entry registry.BackendEntry
	}{
		{name: "empty host", entry: registry.BackendEntry{Name: "software engineering", Host: "", Port: good.Port}},
		{name: "empty port", entry: registry.BackendEntry{Name: "software engineering", Host: good.Host, Port: ""}},
	}

	client := NewClient(Config{}, testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Query(context.Background(), tt.entry, types.NewQueryRequest("q"))
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.ValidationFailed))
			assert.Contains(t, err.Error(), "Check service information")
		})
	}
	assert.Zero(t, calls.Load())
}

func TestQueryTransportFailure(t *testing.T) {
	client := NewClient(Config{}, testLogger())

	_, err := client.Query(context.Background(), closedEntry(t), types.NewQueryRequest("q"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.ProcessFailed))
	assert.Contains(t, err.Error(), "Query request failed")
}

func TestQueryMalformedReply(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "plain text", status: http.StatusOK, body: "pong"},
		{name: "missing references", status: http.StatusOK, body: `{"response":"pong"}`},
		{name: "error page", status: http.StatusInternalServerError, body: `Internal Server Error`},
		{name: "empty body", status: http.StatusOK, body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client := NewClient(Config{}, testLogger())
			_, err := client.Query(context.Background(), entryFor(t, "svc", srv), types.NewQueryRequest("q"))
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.ProcessFailed))
			assert.Contains(t, err.Error(), "Failed to deserialize response into QueryResponse")
		})
	}
}

func TestQueryIgnoresStatusWhenBodyIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"response":"ok","references":[]}`)
	}))
	defer srv.Close()

	client := NewClient(Config{}, testLogger())
	resp, err := client.Query(context.Background(), entryFor(t, "svc", srv), types.NewQueryRequest("q"))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Response)
}

func TestQueryTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(Config{Timeout: 50 * time.Millisecond}, testLogger())
	_, err := client.Query(context.Background(), entryFor(t, "svc", srv), types.NewQueryRequest("q"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.ProcessFailed))
}

func TestQueryExactlyOneAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, "not json")
	}))
	defer srv.Close()

	client := NewClient(Config{}, testLogger())
	_, err := client.Query(context.Background(), entryFor(t, "svc", srv), types.NewQueryRequest("q"))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, "broken")
	}))
	defer srv.Close()

	client := NewClient(Config{Breaker: BreakerConfig{Enabled: true, Failures: 2, OpenTimeout: time.Minute}}, testLogger())
	entry := entryFor(t, "svc", srv)

	for i := 0; i < 2; i++ {
		_, err := client.Query(context.Background(), entry, types.NewQueryRequest("q"))
		require.Error(t, err)
	}

	_, err := client.Query(context.Background(), entry, types.NewQueryRequest("q"))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.ProcessFailed))
	assert.Contains(t, err.Error(), "unavailable")
	assert.Equal(t, int32(2), calls.Load())
}

func TestHealth(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		io.WriteString(w, "OK")
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	client := NewClient(Config{}, testLogger())
	ctx := context.Background()

	assert.NoError(t, client.Health(ctx, entryFor(t, "ok", ok)))

	err := client.Health(ctx, entryFor(t, "failing", failing))
	assert.True(t, errs.IsKind(err, errs.ResponseFailed))

	err = client.Health(ctx, closedEntry(t))
	assert.True(t, errs.IsKind(err, errs.HealthFailed))

	err = client.Health(ctx, registry.BackendEntry{Name: "x"})
	assert.True(t, errs.IsKind(err, errs.ValidationFailed))
}
