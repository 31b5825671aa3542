package dataapi

import "time"

// Machine-readable error codes.
const (
	CodeNotReady        = "ERR_NOT_READY"
	CodeInvalidJSON     = "ERR_INVALID_JSON"
	CodeInvalidInput    = "ERR_INVALID_INPUT"
	CodeModelNotFound   = "ERR_MODEL_NOT_FOUND"
	CodeUnknownKey      = "ERR_UNKNOWN_KEY"
	CodeInvalidOverride = "ERR_INVALID_OVERRIDE"
	CodeRecursionLimit  = "ERR_RECURSION_LIMIT"
)

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details provides optional granular validation errors.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about a specific field failure.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// KeyInfo describes a declared key.
type KeyInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ModelInfo summarises a model.
type ModelInfo struct {
	Name      string   `json:"name"`
	Rules     int      `json:"rules"`
	Fallbacks []string `json:"fallbacks"`
}

// ModelsResponse is returned by GET /api/v1/models.
type ModelsResponse struct {
	Revision string      `json:"revision"`
	LoadedAt time.Time   `json:"loaded_at"`
	Models   []ModelInfo `json:"models"`
	Keys     []KeyInfo   `json:"keys"`
}

// ModelResponse is returned by GET /api/v1/models/{model}: the rules of the
// model itself, highest ranked first, keyed by target.
type ModelResponse struct {
	ModelInfo
	Revision string              `json:"revision"`
	Rules    map[string][]string `json:"rule_set"`
}

// ResolveRequest is the payload of POST /api/v1/models/{model}/resolve.
type ResolveRequest struct {
	// Overrides are literal values forced for this request, keyed by key name.
	// Numbers arrive as json.Number and are converted to the key's type.
	Overrides map[string]any `json:"overrides"`

	// Keys to resolve. Empty means every declared key.
	Keys []string `json:"keys"`
}

// ResolvedValue is the outcome for one key.
type ResolvedValue struct {
	Value  any    `json:"value"`
	Source string `json:"source"`
	Model  string `json:"model,omitempty"`

	// Warning reports a degraded resolution, such as a rule value of the
	// wrong type that was skipped.
	Warning string `json:"warning,omitempty"`
}

// ResolveResponse is returned by a successful resolve call.
type ResolveResponse struct {
	Revision string                   `json:"revision"`
	Model    string                   `json:"model"`
	Values   map[string]ResolvedValue `json:"values"`
}
