package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "handler validation", err: Handler(ValidationFailed, nil, "bad %s", "entry"), want: "Validation failed: bad entry"},
		{name: "handler read", err: Handler(ReadFileFailed, nil, "path: x"), want: "Read file failed: path: x"},
		{name: "handler parse", err: Handler(FileJSONParseFailed, nil, "path: x"), want: "Parse JSON file failed: path: x"},
		{name: "handler process", err: Handler(ProcessFailed, nil, "boom"), want: "Process failed: boom"},
		{name: "service not found", err: Service(NotFound, nil, "Service not found: %s", "svc"), want: "Not found: Service not found: svc"},
		{name: "service query", err: Service(QueryFailed, nil, "down"), want: "Query failed: down"},
		{name: "external health", err: External(HealthFailed, nil, "refused"), want: "ExternalCallError::HealthFailed: refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOfReturnsOutermost(t *testing.T) {
	cause := errors.New("connection refused")
	lower := Handler(ProcessFailed, cause, "Query request failed: %v", cause)
	upper := Service(QueryFailed, lower, "%v", lower)
	wrapped := fmt.Errorf("dispatch: %w", upper)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, QueryFailed, kind)
	assert.True(t, IsKind(wrapped, QueryFailed))
	assert.False(t, IsKind(wrapped, ProcessFailed))

	var he *HandlerError
	require.True(t, errors.As(wrapped, &he))
	assert.Equal(t, ProcessFailed, he.Kind)
	assert.ErrorIs(t, wrapped, cause)
}

func TestKindOfPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsKind(nil, NotFound))
}
