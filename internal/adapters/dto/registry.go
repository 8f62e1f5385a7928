// Package dto holds the JSON bodies exchanged on the registry HTTP surface.
package dto

// RegistryErrorItem is one entry of the OCI error envelope.
type RegistryErrorItem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// RegistryErrorResponse is the OCI error envelope.
type RegistryErrorResponse struct {
	Errors []RegistryErrorItem `json:"errors"`
}

// NewRegistryError builds an envelope carrying a single error.
func NewRegistryError(code, message string) RegistryErrorResponse {
	return RegistryErrorResponse{
		Errors: []RegistryErrorItem{{Code: code, Message: message}},
	}
}

// TagListResponse is the body of GET /v2/<name>/tags/list.
type TagListResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
