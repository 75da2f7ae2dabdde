package types

type ContextKey string

const (
	ContextKeyRequestID     ContextKey = "request_id"
	ContextKeyRequestSource ContextKey = "request_source"
)

// Request sources recorded under ContextKeyRequestSource.
const (
	RequestSourceHTTP = "http"
	RequestSourceTool = "tool"
)
