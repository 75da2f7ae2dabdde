// Package errs defines the layered error taxonomies of the gateway.
//
// HandlerError is raised while loading configuration and performing the
// outbound call, ServiceError by the dispatcher, and ExternalCallError by
// backend health probes. Each carries a Kind and a free-text message and may
// wrap the lower-layer error that caused it.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error within its taxonomy.
type Kind string

// Handler kinds.
const (
	ValidationFailed    Kind = "validation_failed"
	ReadFileFailed      Kind = "read_file_failed"
	FileJSONParseFailed Kind = "file_json_parse_failed"
	ProcessFailed       Kind = "process_failed"
)

// Service kinds. ValidationFailed is shared with the other taxonomies.
const (
	NotFound    Kind = "not_found"
	QueryFailed Kind = "query_failed"
)

// External call kinds.
const (
	HealthFailed   Kind = "health_failed"
	ResponseFailed Kind = "response_failed"
)

var handlerPrefixes = map[Kind]string{
	ValidationFailed:    "Validation failed",
	ReadFileFailed:      "Read file failed",
	FileJSONParseFailed: "Parse JSON file failed",
	ProcessFailed:       "Process failed",
}

var servicePrefixes = map[Kind]string{
	ValidationFailed: "Validation failed",
	NotFound:         "Not found",
	QueryFailed:      "Query failed",
}

var externalPrefixes = map[Kind]string{
	ValidationFailed: "ExternalCallError::ValidationFailed",
	HealthFailed:     "ExternalCallError::HealthFailed",
	ResponseFailed:   "ExternalCallError::ResponseFailed",
}

// HandlerError is raised by registry loading and the outbound client.
type HandlerError struct {
	Kind Kind
	Msg  string
	Err  error
}

// Handler returns a HandlerError with a formatted message.
func Handler(kind Kind, err error, format string, args ...any) *HandlerError {
	return &HandlerError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *HandlerError) Error() string { return render(handlerPrefixes, e.Kind, e.Msg) }
func (e *HandlerError) Unwrap() error { return e.Err }

// ServiceError is raised by the dispatcher.
type ServiceError struct {
	Kind Kind
	Msg  string
	Err  error
}

// Service returns a ServiceError with a formatted message.
func Service(kind Kind, err error, format string, args ...any) *ServiceError {
	return &ServiceError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *ServiceError) Error() string { return render(servicePrefixes, e.Kind, e.Msg) }
func (e *ServiceError) Unwrap() error { return e.Err }

// ExternalCallError is raised when probing a backend outside the query path.
type ExternalCallError struct {
	Kind Kind
	Msg  string
	Err  error
}

// External returns an ExternalCallError with a formatted message.
func External(kind Kind, err error, format string, args ...any) *ExternalCallError {
	return &ExternalCallError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *ExternalCallError) Error() string { return render(externalPrefixes, e.Kind, e.Msg) }
func (e *ExternalCallError) Unwrap() error { return e.Err }

func render(prefixes map[Kind]string, kind Kind, msg string) string {
	prefix, ok := prefixes[kind]
	if !ok {
		prefix = string(kind)
	}
	return prefix + ": " + msg
}

// KindOf reports the kind of the outermost taxonomy error in err's chain.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		switch e := err.(type) {
		case *ServiceError:
			return e.Kind, true
		case *HandlerError:
			return e.Kind, true
		case *ExternalCallError:
			return e.Kind, true
		}
		err = errors.Unwrap(err)
	}
	return "", false
}

// IsKind reports whether the outermost taxonomy error in err's chain has kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
