package hostfuncs

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a ByteHandler. Middleware registered first runs outermost.
type Middleware func(next ByteHandler) ByteHandler

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware turns a handler panic into an INTERNAL_ERROR
// ErrorResponse.
func PanicRecoveryMiddleware() Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "host function panicked",
						"function", FunctionNameFrom(ctx), "panic", PanicMessage(r))
					resp = NewPanicError(r).ToJSON()
					err = nil
				}
			}()
			return next(ctx, payload)
		}
	}
}

// LoggingMiddleware logs each invocation at debug level and failures at
// warn level. A nil logger uses slog.Default at call time.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ByteHandler) ByteHandler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			l := logger
			if l == nil {
				l = slog.Default()
			}
			name := FunctionNameFrom(ctx)

			l.DebugContext(ctx, "invoking host function", "function", name, "payload_bytes", len(payload))
			resp, err := next(ctx, payload)
			if err != nil {
				l.WarnContext(ctx, "host function failed", "function", name, "error", err)
				return resp, err
			}

			attrs := []any{"function", name, "response_bytes", len(resp)}
			if hc, ok := ctx.(HostContext); ok {
				attrs = append(attrs, "duration", time.Since(hc.Started()))
			}
			l.DebugContext(ctx, "host function completed", attrs...)
			return resp, nil
		}
	}
}

// TimeoutMiddleware bounds each invocation's context by d. Handlers that
// honor their context stop early; the result is whatever they return.
func TimeoutMiddleware(d time.Duration) Middleware {
	return func(next ByteHandler) ByteHandler {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			if hc, ok := ctx.(HostContext); ok {
				return next(&timeoutHostContext{HostContext: hc, ctx: tctx}, payload)
			}
			return next(tctx, payload)
		}
	}
}

// timeoutHostContext keeps the HostContext helpers while exposing the
// deadline of the wrapped context.
type timeoutHostContext struct {
	HostContext
	ctx context.Context
}

func (c *timeoutHostContext) Deadline() (time.Time, bool) { return c.ctx.Deadline() }
func (c *timeoutHostContext) Done() <-chan struct{}       { return c.ctx.Done() }
func (c *timeoutHostContext) Err() error                  { return c.ctx.Err() }
func (c *timeoutHostContext) Value(key any) any           { return c.ctx.Value(key) }
