package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/soundprediction/kodabi-gateway/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSink(t *testing.T) *Sink {
	t.Helper()
	sink, err := Open(filepath.Join(t.TempDir(), "telemetry.duckdb"), 16)
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestHandlerRecordsErrorsOnly(t *testing.T) {
	sink := openSink(t)
	var buf bytes.Buffer
	logger := slog.New(NewDuckDBHandler(slog.NewTextHandler(&buf, nil), sink)).
		With("rag_name", "svc", "address", "127.0.0.1:1")

	ctx := context.WithValue(context.Background(), types.ContextKeyRequestID, "req-1")
	ctx = context.WithValue(ctx, types.ContextKeyRequestSource, types.RequestSourceHTTP)

	logger.InfoContext(ctx, "Query dispatch completed")
	logger.ErrorContext(ctx, "Query dispatch failed", "error", errors.New("Process failed: Query request failed: refused"))

	require.NoError(t, sink.Flush(ctx))

	records, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "Query dispatch failed", rec.Message)
	assert.Equal(t, "ERROR", rec.Level)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, types.RequestSourceHTTP, rec.RequestSource)
	assert.Equal(t, "svc", rec.RagName)
	assert.Equal(t, "Process failed: Query request failed: refused", rec.Error)
	assert.Equal(t, "127.0.0.1:1", rec.Attributes["address"])

	// Every record still reaches the wrapped handler.
	assert.Contains(t, buf.String(), "Query dispatch completed")
	assert.Contains(t, buf.String(), "Query dispatch failed")
}

func TestHandlerFallsBackToRecordAttrs(t *testing.T) {
	sink := openSink(t)
	logger := slog.New(NewDuckDBHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), sink))

	logger.Error("Tool query failed", "request_id", "req-2", "source", types.RequestSourceTool)
	require.NoError(t, sink.Flush(context.Background()))

	records, err := sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "req-2", records[0].RequestID)
	assert.Equal(t, types.RequestSourceTool, records[0].RequestSource)
}

func TestHandlerRecordsBelowNextLevel(t *testing.T) {
	sink := openSink(t)

	var buf bytes.Buffer
	next := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError + 4})
	logger := slog.New(NewDuckDBHandler(next, sink))

	logger.Error("recorded but not printed")
	assert.Empty(t, buf.String())

	require.NoError(t, sink.Flush(context.Background()))
	records, err := sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCloseFlushesPendingRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.duckdb")
	sink, err := Open(path, 16)
	require.NoError(t, err)

	logger := slog.New(NewDuckDBHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), sink))
	logger.Error("first")
	logger.Error("second")
	require.NoError(t, sink.Close())

	reopened, err := Open(path, 16)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestLoggingAfterCloseIsDropped(t *testing.T) {
	sink, err := Open(filepath.Join(t.TempDir(), "telemetry.duckdb"), 1)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	logger := slog.New(NewDuckDBHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), sink))
	assert.NotPanics(t, func() { logger.Error("late") })
	assert.NoError(t, sink.Flush(context.Background()))
}

func TestHandlerPrefixesGroupedAttrs(t *testing.T) {
	sink := openSink(t)
	logger := slog.New(NewDuckDBHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), sink)).
		With("rag_name", "svc").
		WithGroup("backend").
		With("address", "127.0.0.1:1")

	logger.Error("Query dispatch failed", "error", "refused", slog.Group("http", "status", 502))
	require.NoError(t, sink.Flush(context.Background()))

	records, err := sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "svc", rec.RagName)
	assert.Empty(t, rec.Error)
	assert.Equal(t, "127.0.0.1:1", rec.Attributes["backend.address"])
	assert.Equal(t, "refused", rec.Attributes["backend.error"])
	assert.Equal(t, "502", rec.Attributes["backend.http.status"])
	assert.NotContains(t, rec.Attributes, "address")
}

func TestRecentRejectsMalformedAttributes(t *testing.T) {
	sink := openSink(t)
	_, err := sink.db.Exec(insertError,
		"bad-row", time.Now().UTC(), "ERROR", "broken", "", "", "", "", `[1,2]`)
	require.NoError(t, err)

	_, err = sink.Recent(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad-row")
}

func TestReaderDoesNotCreateDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.duckdb")
	_, err := OpenReader(path)
	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestReaderReadsWrittenRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.duckdb")
	sink, err := Open(path, 4)
	require.NoError(t, err)
	slog.New(NewDuckDBHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), sink)).Error("failed", "rag_name", "svc")
	require.NoError(t, sink.Close())

	reader, err := OpenReader(path)
	require.NoError(t, err)
	defer reader.Close()

	records, err := reader.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "svc", records[0].RagName)

	_, err = reader.db.Exec(insertError, "x", time.Now().UTC(), "ERROR", "m", "", "", "", "", `{}`)
	assert.Error(t, err)
}
