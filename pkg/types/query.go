package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// QueryMode selects the retrieval strategy of a RAG backend.
type QueryMode string

const (
	QueryModeLocal  QueryMode = "local"
	QueryModeGlobal QueryMode = "global"
	QueryModeHybrid QueryMode = "hybrid"
	QueryModeNaive  QueryMode = "naive"
	QueryModeMix    QueryMode = "mix"
	QueryModeBypass QueryMode = "bypass"
)

// ParseQueryMode returns the mode named by s.
func ParseQueryMode(s string) (QueryMode, error) {
	switch m := QueryMode(s); m {
	case QueryModeLocal, QueryModeGlobal, QueryModeHybrid, QueryModeNaive, QueryModeMix, QueryModeBypass:
		return m, nil
	}
	return "", fmt.Errorf("unknown query mode %q", s)
}

// String implements fmt.Stringer
func (m QueryMode) String() string {
	return string(m)
}

// UnmarshalJSON rejects modes outside the known set.
func (m *QueryMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("query mode must be a string: %w", err)
	}
	parsed, err := ParseQueryMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ConversationRole is the author of a conversation turn.
type ConversationRole string

const (
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// UnmarshalJSON rejects roles other than user and assistant.
func (r *ConversationRole) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("conversation role must be a string: %w", err)
	}
	switch ConversationRole(s) {
	case RoleUser, RoleAssistant:
		*r = ConversationRole(s)
		return nil
	}
	return fmt.Errorf("unknown conversation role %q", s)
}

// ConversationTurn is one message of prior conversation sent along with a query.
type ConversationTurn struct {
	Role    ConversationRole `json:"role" jsonschema:"user or assistant"`
	Content string           `json:"content" jsonschema:"message text"`
}

// UnmarshalJSON requires both role and content.
func (t *ConversationTurn) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    *ConversationRole `json:"role"`
		Content *string           `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Role == nil {
		return fmt.Errorf("conversation turn is missing role")
	}
	if raw.Content == nil {
		return fmt.Errorf("conversation turn is missing content")
	}
	t.Role = *raw.Role
	t.Content = *raw.Content
	return nil
}

// Default values applied by NewQueryRequest.
const (
	DefaultQueryMode         = QueryModeHybrid
	DefaultResponseType      = "Multiple Paragraphs"
	DefaultTopK              = 40
	DefaultChunkTopK         = 20
	DefaultMaxEntityTokens   = 6000
	DefaultMaxRelationTokens = 10000
	DefaultMaxTotalTokens    = 30000
)

// QueryRequest is the body sent to a backend's /query endpoint.
type QueryRequest struct {
	Query               string             `json:"query"`
	Mode                QueryMode          `json:"mode"`
	OnlyNeedContext     *bool              `json:"only_need_context,omitempty"`
	OnlyNeedPrompt      *bool              `json:"only_need_prompt,omitempty"`
	ResponseType        string             `json:"response_type"`
	TopK                int                `json:"top_k"`
	ChunkTopK           int                `json:"chunk_top_k"`
	MaxEntityTokens     int                `json:"max_entity_tokens"`
	MaxRelationTokens   int                `json:"max_relation_tokens"`
	MaxTotalTokens      int                `json:"max_total_tokens"`
	ConversationHistory []ConversationTurn `json:"conversation_history,omitempty"`
	UserPrompt          *string            `json:"user_prompt,omitempty"`
	EnableRerank        *bool              `json:"enable_rerank,omitempty"`
	IncludeReferences   bool               `json:"include_references"`
	Stream              *bool              `json:"stream,omitempty"`
}

// NewQueryRequest returns a request for query with every other field at its default.
func NewQueryRequest(query string) QueryRequest {
	return QueryRequest{
		Query:             query,
		Mode:              DefaultQueryMode,
		ResponseType:      DefaultResponseType,
		TopK:              DefaultTopK,
		ChunkTopK:         DefaultChunkTopK,
		MaxEntityTokens:   DefaultMaxEntityTokens,
		MaxRelationTokens: DefaultMaxRelationTokens,
		MaxTotalTokens:    DefaultMaxTotalTokens,
		IncludeReferences: true,
	}
}

// WithMode sets the retrieval mode.
func (q QueryRequest) WithMode(mode QueryMode) QueryRequest {
	q.Mode = mode
	return q
}

// WithUserPrompt sets the user prompt; nil clears it.
func (q QueryRequest) WithUserPrompt(prompt *string) QueryRequest {
	q.UserPrompt = prompt
	return q
}

// WithConversationHistory sets the prior conversation.
func (q QueryRequest) WithConversationHistory(history []ConversationTurn) QueryRequest {
	q.ConversationHistory = history
	return q
}

// UnmarshalJSON fills fields missing from data with their defaults.
func (q *QueryRequest) UnmarshalJSON(data []byte) error {
	type plain QueryRequest
	out := plain(NewQueryRequest(""))
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*q = QueryRequest(out)
	return nil
}

// Reference points at a source document the backend used for its answer.
type Reference struct {
	ReferenceID string `json:"reference_id"`
	FilePath    string `json:"file_path"`
}

// QueryResponse is the normalized reply of a backend.
type QueryResponse struct {
	Response   string      `json:"response"`
	References []Reference `json:"references"`
}

// MarshalJSON always encodes references as an array.
func (r QueryResponse) MarshalJSON() ([]byte, error) {
	type plain QueryResponse
	out := plain(r)
	if out.References == nil {
		out.References = []Reference{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON requires both response and references to be present.
func (r *QueryResponse) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, key := range []string{"response", "references"} {
		v, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("missing field %q", key)
		}
	}

	type plain QueryResponse
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*r = QueryResponse(out)
	return nil
}
