package evalapi

import (
	"strings"
	"time"
)

// EvaluateRequest is the payload of POST /api/v1/evaluate.
type EvaluateRequest struct {
	// FlagKey is the feature to resolve.
	FlagKey string `json:"flagKey"`

	// Type is the requested result kind ("boolean", "string", "integer", "double", "object", ...).
	Type string `json:"type"`

	// Default is returned whenever the flag cannot be resolved. Its shape must match Type.
	Default any `json:"default"`

	Context EvaluationContext `json:"context"`
}

// EvaluationContext describes the entity the flag is evaluated for.
type EvaluationContext struct {
	TargetingKey string         `json:"targetingKey"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

// Sanitize trims whitespace from identifiers.
func (r *EvaluateRequest) Sanitize() {
	r.FlagKey = strings.TrimSpace(r.FlagKey)
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	r.Context.TargetingKey = strings.TrimSpace(r.Context.TargetingKey)
}

// Validate checks the fields every evaluation needs.
func (r *EvaluateRequest) Validate() *ErrorResponse {
	var details []ErrorDetail
	if r.FlagKey == "" {
		details = append(details, ErrorDetail{Field: "flagKey", Issue: "required"})
	}
	if r.Type == "" {
		details = append(details, ErrorDetail{Field: "type", Issue: "required"})
	}
	if r.Default == nil {
		details = append(details, ErrorDetail{Field: "default", Issue: "required"})
	}
	if len(details) == 0 {
		return nil
	}
	return &ErrorResponse{
		Code:    "ERR_INVALID_INPUT",
		Message: "Request is missing required fields",
		Details: details,
	}
}

// EvaluateResponse is the resolved flag.
type EvaluateResponse struct {
	FlagKey  string            `json:"flagKey"`
	Value    any               `json:"value"`
	Variant  string            `json:"variant,omitempty"`
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FlagsResponse lists the features of the active snapshot.
type FlagsResponse struct {
	Keys      []string   `json:"keys"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details provides optional granular validation errors.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about specific field validation failures.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}
