package hostfuncs

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse_ToJSON(t *testing.T) {
	tests := []struct {
		name     string
		err      ErrorResponse
		expected string
	}{
		{"validation", NewValidationError("invalid JSON"), `{"error":"VALIDATION_ERROR","message":"invalid JSON","code":400}`},
		{"not found", NewNotFoundError("foo"), `{"error":"NOT_FOUND","message":"unknown host function: foo","code":404}`},
		{"internal", NewInternalError("oh no"), `{"error":"INTERNAL_ERROR","message":"oh no","code":500}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.expected, string(tt.err.ToJSON()))

			var decoded ErrorResponse
			require.NoError(t, json.Unmarshal(tt.err.ToJSON(), &decoded))
			assert.Equal(t, tt.err, decoded)
		})
	}
}

func TestErrorResponse_Text(t *testing.T) {
	assert.Equal(t, "Error: unknown host function: x", NewNotFoundError("x").Text())
}

func TestNewPanicError(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "oh no", "panic: oh no"},
		{"error", errors.New("bad"), "panic: bad"},
		{"int", 42, "panic: 42"},
		{"nil", nil, "panic: panic recovered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewPanicError(tt.value)
			assert.Equal(t, "INTERNAL_ERROR", got.Error)
			assert.Equal(t, 500, got.Code)
			assert.Equal(t, tt.want, got.Message)
		})
	}
}
