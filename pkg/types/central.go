package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CentralQuery is a query addressed to a named RAG backend. Both inbound
// adapters translate their payloads into this shape before dispatch.
type CentralQuery struct {
	RagName string       `json:"rag_name"`
	Query   QueryRequest `json:"query"`
}

// UnmarshalJSON accepts query either as a QueryRequest object or as a bare
// string, which is shorthand for NewQueryRequest(s).
func (c *CentralQuery) UnmarshalJSON(data []byte) error {
	var raw struct {
		RagName *string         `json:"rag_name"`
		Query   json.RawMessage `json:"query"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.RagName == nil {
		return fmt.Errorf("missing field %q", "rag_name")
	}

	query, err := decodeQueryPayload(raw.Query)
	if err != nil {
		return err
	}

	c.RagName = *raw.RagName
	c.Query = query
	return nil
}

// queryPayloadKind is the JSON shape of the query field.
type queryPayloadKind int

const (
	queryPayloadMissing queryPayloadKind = iota
	queryPayloadString
	queryPayloadObject
	queryPayloadOther
)

func classifyQueryPayload(raw json.RawMessage) queryPayloadKind {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return queryPayloadMissing
	}
	switch trimmed[0] {
	case '"':
		return queryPayloadString
	case '{':
		return queryPayloadObject
	}
	return queryPayloadOther
}

func decodeQueryPayload(raw json.RawMessage) (QueryRequest, error) {
	switch classifyQueryPayload(raw) {
	case queryPayloadString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return QueryRequest{}, fmt.Errorf("invalid query string: %w", err)
		}
		return NewQueryRequest(s), nil
	case queryPayloadObject:
		var q QueryRequest
		if err := json.Unmarshal(raw, &q); err != nil {
			return QueryRequest{}, fmt.Errorf("invalid query object: %w", err)
		}
		return q, nil
	case queryPayloadMissing:
		return QueryRequest{}, fmt.Errorf("missing field %q", "query")
	}
	return QueryRequest{}, fmt.Errorf("query must be a string or an object")
}
