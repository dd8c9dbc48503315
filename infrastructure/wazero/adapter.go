package wazero

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/vss-interop/vss-go-interop/hostfuncs"
)

const (
	// DefaultModuleName is the import module guests link against.
	DefaultModuleName = "vss_host"

	// DefaultMaxRequestSize caps a single request read from guest memory.
	DefaultMaxRequestSize uint32 = 1 << 20

	allocateExport = "allocate"
)

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	ModuleName string

	// MaxRequestSize limits the size of incoming requests from guest memory.
	MaxRequestSize uint32

	// CustomHandlers are exported as-is, outside the packed i64 convention.
	CustomHandlers []CustomHandler
}

// CustomHandler is a host function with its own signature.
type CustomHandler struct {
	Handler     api.GoModuleFunc
	Name        string
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name.
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMaxRequestSize sets the maximum request size from guest memory.
func WithMaxRequestSize(size uint32) AdapterOption {
	return func(c *AdapterConfig) {
		c.MaxRequestSize = size
	}
}

// WithCustomHandler adds a custom wazero handler.
func WithCustomHandler(h CustomHandler) AdapterOption {
	return func(c *AdapterConfig) {
		c.CustomHandlers = append(c.CustomHandlers, h)
	}
}

func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName:     DefaultModuleName,
		MaxRequestSize: DefaultMaxRequestSize,
	}
}

// RegisterWithRuntime exports every handler in registry from a host module
// named by the config (default "vss_host").
//
// Each export takes one i64 holding the request (ptr<<32 | len) in guest
// memory and returns the response packed the same way. The response buffer is
// obtained from the guest's "allocate" export and belongs to the guest from
// then on. 0 means no response could be written.
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, registry *hostfuncs.HandlerRegistry, opts ...AdapterOption) (api.Module, error) {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)

	for _, name := range registry.Names() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = handleRegistryCall(ctx, mod, stack[0], registry, name, cfg.MaxRequestSize)
			}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(name)
	}

	for _, ch := range cfg.CustomHandlers {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(ch.Handler, ch.ParamTypes, ch.ResultTypes).
			Export(ch.Name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("instantiate host module %q: %w", cfg.ModuleName, err)
	}
	return mod, nil
}

func handleRegistryCall(ctx context.Context, mod api.Module, packed uint64, registry *hostfuncs.HandlerRegistry, name string, maxRequestSize uint32) uint64 {
	logger := slog.With("function", name, "guest", GuestName(ctx, mod))

	mem := mod.Memory()
	if mem == nil {
		logger.ErrorContext(ctx, "wazero: caller exports no memory")
		return 0
	}

	ptr, length := unpackPtrLen(packed)
	if length > maxRequestSize {
		msg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, maxRequestSize)
		logger.ErrorContext(ctx, "wazero: "+msg)
		return writeResponse(ctx, mod, hostfuncs.NewValidationError(msg).ToJSON())
	}

	request, ok := mem.Read(ptr, length)
	if !ok {
		logger.ErrorContext(ctx, "wazero: request out of guest memory bounds", "ptr", ptr, "len", length)
		return writeResponse(ctx, mod, hostfuncs.NewInternalError("failed to read request from guest memory").ToJSON())
	}

	// mem.Read aliases guest memory, which allocate may grow and move.
	return writeResponse(ctx, mod, registry.Call(ctx, name, append([]byte(nil), request...)))
}

// writeResponse copies data into a guest buffer and returns it packed, or 0.
func writeResponse(ctx context.Context, mod api.Module, data []byte) uint64 {
	allocate := mod.ExportedFunction(allocateExport)
	if allocate == nil {
		slog.ErrorContext(ctx, "wazero: guest module missing allocate export")
		return 0
	}

	results, err := allocate.Call(ctx, uint64(len(data)))
	if err != nil {
		slog.ErrorContext(ctx, "wazero: guest allocate failed", "error", err)
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit

	if !mod.Memory().Write(ptr, data) {
		slog.ErrorContext(ctx, "wazero: failed to write response to guest memory")
		return 0
	}

	return packPtrLen(ptr, uint32(len(data))) //nolint:gosec // G115: bounded by guest memory size
}

// packPtrLen packs ptr into the upper and length into the lower 32 bits.
func packPtrLen(ptr, length uint32) uint64 {
	return (uint64(ptr) << 32) | uint64(length)
}

func unpackPtrLen(packed uint64) (ptr, length uint32) {
	ptr = uint32(packed >> 32)           //nolint:gosec // G115: packed format stores 32-bit values
	length = uint32(packed & 0xFFFFFFFF) //nolint:gosec // G115: packed format stores 32-bit values
	return ptr, length
}
