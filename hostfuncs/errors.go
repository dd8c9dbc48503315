package hostfuncs

import (
	"encoding/json"
	"fmt"
)

// ErrorResponse is the JSON body returned by the registry in place of a Go
// error, so callers across the boundary always get a parseable reply.
type ErrorResponse struct {
	// Error is a machine-readable kind, e.g. "VALIDATION_ERROR".
	Error string `json:"error"`

	Message string `json:"message"`

	// Code follows HTTP status semantics.
	Code int `json:"code"`
}

// ToJSON encodes the response. The type has no fields that can fail to
// encode, so the error is dropped.
func (e ErrorResponse) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// Text renders the response in the "Error: ..." form used by text entry points.
func (e ErrorResponse) Text() string {
	return "Error: " + e.Message
}

// NewValidationError reports malformed input.
func NewValidationError(message string) ErrorResponse {
	return ErrorResponse{Error: "VALIDATION_ERROR", Message: message, Code: 400}
}

// NewNotFoundError reports an unknown host function name.
func NewNotFoundError(name string) ErrorResponse {
	return ErrorResponse{Error: "NOT_FOUND", Message: "unknown host function: " + name, Code: 404}
}

// NewInternalError reports an unexpected failure.
func NewInternalError(message string) ErrorResponse {
	return ErrorResponse{Error: "INTERNAL_ERROR", Message: message, Code: 500}
}

// NewPanicError reports a recovered panic.
func NewPanicError(panicValue any) ErrorResponse {
	return NewInternalError("panic: " + PanicMessage(panicValue))
}

// PanicMessage renders a recovered panic value as text.
func PanicMessage(v any) string {
	switch p := v.(type) {
	case error:
		return p.Error()
	case string:
		return p
	case nil:
		return "panic recovered"
	default:
		return fmt.Sprint(p)
	}
}
