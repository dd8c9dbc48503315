package hostfuncs

import (
	"context"
	"encoding/json"
	"fmt"
)

// HostFunc is a typed host function.
type HostFunc[Req any, Resp any] func(context.Context, Req) Resp

// TextFunc is a host function over plain text, e.g. InspectIP.
type TextFunc func(context.Context, string) string

// ByteHandler is the untyped form every registry entry is reduced to.
// Payload and response are owned by the caller and the handler respectively.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// NewJSONHandler wraps a typed HostFunc: the payload is decoded into Req and
// the returned Resp is encoded as JSON.
func NewJSONHandler[Req any, Resp any](fn HostFunc[Req, Resp]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request: %w", err)
		}

		respBytes, err := json.Marshal(fn(ctx, req))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response: %w", err)
		}
		return respBytes, nil
	}
}

// NewTextHandler wraps a TextFunc. Payload and response are passed through
// as UTF-8 text without any envelope.
func NewTextHandler(fn TextFunc) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(fn(ctx, string(payload))), nil
	}
}
