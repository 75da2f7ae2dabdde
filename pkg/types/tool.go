package types

// ToolQuery is the argument shape of the RAG query tool, kept small for LLM callers.
type ToolQuery struct {
	RagName    string             `json:"rag_name" jsonschema:"name of the RAG service to ask"`
	Query      string             `json:"query" jsonschema:"question to answer from the knowledge corpus"`
	Mode       *QueryMode         `json:"mode,omitempty" jsonschema:"retrieval mode: local, global, hybrid, naive, mix or bypass"`
	UserPrompt *string            `json:"user_prompt,omitempty" jsonschema:"extra instructions for answer generation"`
	History    []ConversationTurn `json:"history,omitempty" jsonschema:"previous conversation turns"`
}

// CentralQuery converts the tool arguments into a dispatchable query. Fields
// the tool does not expose keep their defaults.
func (t ToolQuery) CentralQuery() CentralQuery {
	req := NewQueryRequest(t.Query)
	if t.Mode != nil {
		req = req.WithMode(*t.Mode)
	}
	if t.UserPrompt != nil {
		req = req.WithUserPrompt(t.UserPrompt)
	}
	if len(t.History) > 0 {
		req = req.WithConversationHistory(t.History)
	}
	return CentralQuery{
		RagName: t.RagName,
		Query:   req,
	}
}
