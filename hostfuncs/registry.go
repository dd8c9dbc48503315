package hostfuncs

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// HandlerRegistry is an immutable set of named host functions. Lookups need
// no locking because nothing changes after NewRegistry returns.
type HandlerRegistry struct {
	handlers map[string]ByteHandler
	names    []string
}

type registryBuilder struct {
	handlers   map[string]ByteHandler
	middleware []Middleware
	errs       []error
}

// NewRegistry builds a registry. Every handler is wrapped by the middleware
// chain at construction. Duplicate or empty names are reported together.
//
//	registry, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithBundle(AllBundles(fetcher, nil)),
//	)
func NewRegistry(opts ...RegistryOption) (*HandlerRegistry, error) {
	b := &registryBuilder{handlers: make(map[string]ByteHandler)}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	r := &HandlerRegistry{
		handlers: make(map[string]ByteHandler, len(b.handlers)),
		names:    make([]string, 0, len(b.handlers)),
	}
	for name, handler := range b.handlers {
		for i := len(b.middleware) - 1; i >= 0; i-- {
			handler = b.middleware[i](handler)
		}
		r.handlers[name] = handler
		r.names = append(r.names, name)
	}
	slices.Sort(r.names)

	return r, nil
}

// Invoke dispatches a call by name. An unknown name yields a NOT_FOUND
// ErrorResponse rather than an error.
func (r *HandlerRegistry) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return NewNotFoundError(name).ToJSON(), nil
	}
	return handler(HostContextFrom(ctx, name), payload)
}

// Call is Invoke with handler errors folded into a VALIDATION_ERROR
// ErrorResponse, for callers that only move bytes.
func (r *HandlerRegistry) Call(ctx context.Context, name string, payload []byte) []byte {
	resp, err := r.Invoke(ctx, name, payload)
	if err != nil {
		return NewValidationError(err.Error()).ToJSON()
	}
	return resp
}

func (r *HandlerRegistry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *HandlerRegistry) Names() []string {
	return slices.Clone(r.names)
}

func (r *HandlerRegistry) Len() int {
	return len(r.names)
}

func (b *registryBuilder) add(name string, handler ByteHandler) {
	switch {
	case name == "":
		b.errs = append(b.errs, errors.New("handler name cannot be empty"))
	case handler == nil:
		b.errs = append(b.errs, fmt.Errorf("handler %q is nil", name))
	default:
		if _, exists := b.handlers[name]; exists {
			b.errs = append(b.errs, fmt.Errorf("duplicate handler name: %q", name))
			return
		}
		b.handlers[name] = handler
	}
}

// WithByteHandler registers a raw handler.
func WithByteHandler(name string, handler ByteHandler) RegistryOption {
	return func(b *registryBuilder) {
		b.add(name, handler)
	}
}

// WithTextHandler registers a plain-text handler.
func WithTextHandler(name string, fn TextFunc) RegistryOption {
	return func(b *registryBuilder) {
		b.add(name, NewTextHandler(fn))
	}
}

// WithHandler registers a typed handler with JSON encoding on both sides.
func WithHandler[Req any, Resp any](name string, fn HostFunc[Req, Resp]) RegistryOption {
	return func(b *registryBuilder) {
		b.add(name, NewJSONHandler(fn))
	}
}

// WithMiddleware appends middleware; the first one added runs outermost.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
