package hostfuncs

import (
	"context"
	"sync"
	"time"
)

// HostContext is the context handed to every registry handler. It carries
// the invoked function name, the invocation start time, and a small
// request-scoped value store that middleware can share.
type HostContext interface {
	context.Context

	FunctionName() string

	// Started is when the registry began dispatching the call.
	Started() time.Time

	// SetValue stores a request-scoped value in place.
	SetValue(key, value any)

	GetValue(key any) (value any, ok bool)
}

type hostContext struct {
	context.Context
	started  time.Time
	values   map[any]any
	funcName string
	mu       sync.RWMutex
}

// NewHostContext wraps ctx for an invocation of funcName.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
		started:  time.Now(),
	}
}

func (c *hostContext) FunctionName() string { return c.funcName }

func (c *hostContext) Started() time.Time { return c.started }

func (c *hostContext) SetValue(key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = value
}

func (c *hostContext) GetValue(key any) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// HostContextFrom returns ctx itself when it already is a HostContext.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName)
}

// FunctionNameFrom returns the invoked function name, or "unknown".
func FunctionNameFrom(ctx context.Context) string {
	if hc, ok := ctx.(HostContext); ok {
		return hc.FunctionName()
	}
	return "unknown"
}
