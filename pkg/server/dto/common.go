package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// ReadinessResponse is returned by GET /ready
type ReadinessResponse struct {
	Status   string `json:"status"`
	Services int    `json:"services"`
}

// ServiceInfo describes one registry entry
type ServiceInfo struct {
	RagName string `json:"rag_name"`
	RagIP   string `json:"rag_ip"`
	RagPort string `json:"rag_port"`
	Healthy *bool  `json:"healthy,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServicesResponse lists the registry in load order
type ServicesResponse struct {
	Services []ServiceInfo `json:"services"`
}
