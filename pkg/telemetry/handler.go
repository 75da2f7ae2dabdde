// Package telemetry records error logs in DuckDB so failed dispatches can be
// queried after the fact.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	"github.com/soundprediction/kodabi-gateway/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS execution_errors (
	id VARCHAR,
	timestamp TIMESTAMP,
	level VARCHAR,
	message VARCHAR,
	request_id VARCHAR,
	request_source VARCHAR,
	rag_name VARCHAR,
	error VARCHAR,
	attributes JSON
);
`

const insertError = `
INSERT INTO execution_errors (
	id, timestamp, level, message,
	request_id, request_source, rag_name,
	error, attributes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`

// ErrorRecord is one row of execution_errors.
type ErrorRecord struct {
	ID            string
	Timestamp     time.Time
	Level         string
	Message       string
	RequestID     string
	RequestSource string
	RagName       string
	Error         string
	Attributes    map[string]any
}

// Sink writes error records to DuckDB from a single background worker.
type Sink struct {
	db      *sql.DB
	records chan sinkItem
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// sinkItem carries either a record or a flush barrier.
type sinkItem struct {
	rec   ErrorRecord
	flush chan struct{}
}

// Open opens (or creates) the DuckDB database at path and starts the writer.
func Open(path string, buffer int) (*Sink, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if buffer <= 0 {
		buffer = 256
	}

	s := &Sink{
		db:      db,
		records: make(chan sinkItem, buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *Sink) run() {
	defer close(s.done)
	for item := range s.records {
		if item.flush != nil {
			close(item.flush)
			continue
		}
		rec := item.rec
		attrs, _ := json.Marshal(rec.Attributes)
		_, err := s.db.Exec(insertError,
			rec.ID, rec.Timestamp, rec.Level, rec.Message,
			rec.RequestID, rec.RequestSource, rec.RagName,
			rec.Error, string(attrs),
		)
		if err != nil {
			// Logging through slog here would loop back into the sink.
			fmt.Fprintf(os.Stderr, "Failed to log error to DuckDB: %v\n", err)
		}
	}
}

// enqueue drops the record when the buffer is full rather than blocking the
// request that logged it.
func (s *Sink) enqueue(rec ErrorRecord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.records <- sinkItem{rec: rec}:
		return true
	default:
		return false
	}
}

// Flush blocks until every record enqueued before the call is written.
func (s *Sink) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.records <- sinkItem{flush: barrier}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending records and closes the database.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.records)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}

// Recent returns up to limit records, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]ErrorRecord, error) {
	return recent(ctx, s.db, limit)
}

// Reader reads a telemetry database opened read-only, so it never creates
// the file or its schema.
type Reader struct {
	db *sql.DB
}

// OpenReader opens the DuckDB database at path in read-only mode.
func OpenReader(path string) (*Reader, error) {
	db, err := sql.Open("duckdb", path+"?access_mode=read_only")
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open telemetry database %s read-only: %w", path, err)
	}
	return &Reader{db: db}, nil
}

// Recent returns up to limit records, newest first.
func (r *Reader) Recent(ctx context.Context, limit int) ([]ErrorRecord, error) {
	return recent(ctx, r.db, limit)
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

func recent(ctx context.Context, db *sql.DB, limit int) ([]ErrorRecord, error) {
	rows, err := db.QueryContext(ctx, `
	SELECT id, timestamp, level, message, request_id, request_source, rag_name, error, CAST(attributes AS VARCHAR)
	FROM execution_errors
	ORDER BY timestamp DESC
	LIMIT ?;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ErrorRecord
	for rows.Next() {
		var rec ErrorRecord
		var attrs sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Level, &rec.Message,
			&rec.RequestID, &rec.RequestSource, &rec.RagName, &rec.Error, &attrs); err != nil {
			return nil, err
		}
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &rec.Attributes); err != nil {
				return nil, fmt.Errorf("record %s has malformed attributes: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DuckDBHandler is a slog.Handler that copies error records to a Sink before
// passing every record to next.
type DuckDBHandler struct {
	next   slog.Handler
	sink   *Sink
	attrs  []slog.Attr
	prefix string
}

// NewDuckDBHandler creates a new DuckDBHandler
func NewDuckDBHandler(next slog.Handler, sink *Sink) *DuckDBHandler {
	return &DuckDBHandler{
		next: next,
		sink: sink,
	}
}

// Enabled implements slog.Handler
func (h *DuckDBHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelError || h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *DuckDBHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.next.Enabled(ctx, r.Level) {
		err = h.next.Handle(ctx, r)
	}

	if r.Level < slog.LevelError {
		return err
	}

	rec := ErrorRecord{
		ID:         uuid.NewString(),
		Timestamp:  r.Time.UTC(),
		Level:      r.Level.String(),
		Message:    r.Message,
		Attributes: make(map[string]any),
	}
	if v, ok := ctx.Value(types.ContextKeyRequestID).(string); ok {
		rec.RequestID = v
	}
	if v, ok := ctx.Value(types.ContextKeyRequestSource).(string); ok {
		rec.RequestSource = v
	}

	for _, a := range h.attrs {
		collectAttr(&rec, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collectAttr(&rec, h.prefix, a)
		return true
	})

	h.sink.enqueue(rec)
	return err
}

// collectAttr stores a under its dotted key, flattening groups the way the
// console handler prints them. Ungrouped well-known keys also fill the
// record's columns.
func collectAttr(rec *ErrorRecord, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			collectAttr(rec, p, ga)
		}
		return
	}

	if prefix == "" {
		switch a.Key {
		case "rag_name":
			rec.RagName = a.Value.String()
		case "error":
			rec.Error = a.Value.String()
		case "request_id":
			if rec.RequestID == "" {
				rec.RequestID = a.Value.String()
			}
		case "source":
			if rec.RequestSource == "" {
				rec.RequestSource = a.Value.String()
			}
		}
	}
	rec.Attributes[prefix+a.Key] = a.Value.String()
}

// WithAttrs implements slog.Handler
func (h *DuckDBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		if h.prefix != "" {
			a = slog.Attr{Key: strings.TrimSuffix(h.prefix, "."), Value: slog.GroupValue(a)}
		}
		newAttrs = append(newAttrs, a)
	}
	return &DuckDBHandler{
		next:   h.next.WithAttrs(attrs),
		sink:   h.sink,
		attrs:  newAttrs,
		prefix: h.prefix,
	}
}

// WithGroup implements slog.Handler
func (h *DuckDBHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &DuckDBHandler{
		next:   h.next.WithGroup(name),
		sink:   h.sink,
		attrs:  h.attrs,
		prefix: h.prefix + name + ".",
	}
}
