// Package bridge implements the operations behind the exported C entry
// points on plain Go values: borrowed views in, owned handles out.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"unsafe"

	interop "github.com/vss-interop/vss-go-interop"
	"github.com/vss-interop/vss-go-interop/hostfuncs"
	"github.com/vss-interop/vss-go-interop/internal/abi"
	"github.com/vss-interop/vss-go-interop/log"
	"github.com/vss-interop/vss-go-interop/workers"
)

// Bridge owns everything an entry point needs. The zero value is not usable;
// call New or Default.
type Bridge struct {
	cfg      atomic.Pointer[interop.Config]
	fetcher  atomic.Pointer[hostfuncs.Fetcher]
	registry atomic.Pointer[hostfuncs.HandlerRegistry]
	runtime  *workers.Lazy
	geo      *geoIP
	extra    []hostfuncs.HTTPOption
	mu       sync.Mutex
}

// Option configures New.
type Option func(*Bridge)

// WithTransport routes every outbound request through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(b *Bridge) {
		b.extra = append(b.extra, hostfuncs.WithHTTPTransport(rt))
	}
}

// New creates a Bridge for cfg. cfg is assumed valid.
func New(cfg interop.Config, opts ...Option) *Bridge {
	b := &Bridge{geo: &geoIP{}}
	for _, opt := range opts {
		opt(b)
	}
	b.runtime = workers.NewLazy(b.buildPool)
	if err := b.apply(cfg); err != nil {
		// only reachable if the built-in handler set is inconsistent
		panic(err)
	}
	return b
}

var (
	defaultOnce   sync.Once
	defaultBridge *Bridge
)

// Default returns the process-wide Bridge, configured from the environment
// on first use.
func Default() *Bridge {
	defaultOnce.Do(func() {
		cfg, err := interop.FromEnv()
		log.Install(cfg.SlogLevel())
		if err != nil {
			slog.Warn("ignoring invalid environment configuration", "error", err)
		}
		defaultBridge = New(cfg)
	})
	return defaultBridge
}

func (b *Bridge) buildPool() *workers.Pool {
	cfg := b.Config()
	size := cfg.PoolSize()
	slog.Info("starting async runtime", "workers", size, "queue_size", cfg.QueueSize)
	return workers.NewPool(size, cfg.QueueSize)
}

// apply swaps in cfg and everything derived from it.
func (b *Bridge) apply(cfg interop.Config) error {
	fetcher := hostfuncs.NewFetcher(append(cfg.HTTPOptions(), b.extra...)...)

	registry, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.LoggingMiddleware(nil),
		),
		hostfuncs.WithBundle(hostfuncs.AllBundles(fetcher, b.geo)),
	)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	b.geo.setPath(cfg.GeoIPDatabase)
	b.cfg.Store(&cfg)
	if prev := b.fetcher.Swap(fetcher); prev != nil {
		prev.CloseIdleConnections()
	}
	b.registry.Store(registry)
	return nil
}

// Config returns the configuration in force.
func (b *Bridge) Config() interop.Config {
	return *b.cfg.Load()
}

// Registry returns the current handler registry.
func (b *Bridge) Registry() *hostfuncs.HandlerRegistry {
	return b.registry.Load()
}

// RuntimeBuilds reports how many async runtimes were created (0 or 1).
func (b *Bridge) RuntimeBuilds() int {
	return b.runtime.Builds()
}

// FetchText performs a blocking GET and renders the synchronous result.
func (b *Bridge) FetchText(ctx context.Context, url string) string {
	return b.fetcher.Load().Get(ctx, url).Body()
}

// FetchAsync schedules a GET on the process runtime and calls deliver
// exactly once with the summary text, on a worker goroutine.
func (b *Bridge) FetchAsync(url string, deliver func(string)) {
	pool := b.runtime.Get()
	fetcher := b.fetcher.Load()

	pool.Deliver(
		func() string {
			return fetcher.Get(context.Background(), url).Summary()
		},
		func(recovered string) string {
			return fmt.Sprintf("[%s] Internal error: %s", url, recovered)
		},
		deliver,
	)
}

// InspectIP classifies text.
func (b *Bridge) InspectIP(text string) string {
	return hostfuncs.InspectIP(text)
}

// GeoIPCountry looks up the country of the address in text.
func (b *Bridge) GeoIPCountry(text string) string {
	return hostfuncs.CountryText(b.geo, text)
}

// Configure applies a JSON object on top of the current configuration and
// returns the effective configuration as JSON, or an "Error: ..." line.
// workers and queue_size have no effect once the async runtime exists.
func (b *Bridge) Configure(data string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.Config()
	next, err := interop.DecodeConfig(current, []byte(data))
	if err != nil {
		return "Error: " + err.Error()
	}
	if err := b.apply(next); err != nil {
		return "Error: " + err.Error()
	}
	log.Install(next.SlogLevel())

	if b.runtime.Initialized() && (next.Workers != current.Workers || next.QueueSize != current.QueueSize) {
		slog.Warn("async runtime already running; workers and queue_size unchanged")
	}
	slog.Debug("configuration applied", "timeout_ms", next.TimeoutMs, "ssrf_protection", next.SSRFProtection)

	out, err := json.Marshal(next)
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(out)
}

// ConfigSchema returns the configuration JSON Schema.
func (b *Bridge) ConfigSchema() string {
	data, err := interop.ConfigSchema()
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(data)
}

// HTTPRequestJSON runs a structured HTTPRequest given as JSON.
func (b *Bridge) HTTPRequestJSON(ctx context.Context, data string) string {
	return b.Invoke(ctx, "http_request", data)
}

// Invoke dispatches any registered host function by name.
func (b *Bridge) Invoke(ctx context.Context, name, payload string) string {
	return string(b.registry.Load().Call(ctx, name, []byte(payload)))
}

// Close releases the GeoIP reader. The async runtime is never torn down.
func (b *Bridge) Close() error {
	return b.geo.close()
}

// The methods below take borrowed views and return owned handles.

// GetBodyView is FetchText over a borrowed view.
func (b *Bridge) GetBodyView(data unsafe.Pointer, size int) unsafe.Pointer {
	url := abi.CopyView(data, size)
	return handleOf(func() string { return b.FetchText(context.Background(), url) })
}

// FetchAsyncView copies the view, then schedules FetchAsync. deliver
// receives a handle the host now owns.
func (b *Bridge) FetchAsyncView(data unsafe.Pointer, size int, deliver func(handle unsafe.Pointer)) {
	url := abi.CopyView(data, size)
	b.FetchAsync(url, func(result string) {
		deliver(abi.NewString(result))
	})
}

// InspectIPView is InspectIP over a borrowed view.
func (b *Bridge) InspectIPView(data unsafe.Pointer, size int) unsafe.Pointer {
	text := abi.CopyView(data, size)
	return handleOf(func() string { return b.InspectIP(text) })
}

// GeoIPCountryView is GeoIPCountry over a borrowed view.
func (b *Bridge) GeoIPCountryView(data unsafe.Pointer, size int) unsafe.Pointer {
	text := abi.CopyView(data, size)
	return handleOf(func() string { return b.GeoIPCountry(text) })
}

// ConfigureView is Configure over a borrowed view.
func (b *Bridge) ConfigureView(data unsafe.Pointer, size int) unsafe.Pointer {
	text := abi.CopyView(data, size)
	return handleOf(func() string { return b.Configure(text) })
}

// ConfigSchemaHandle returns the schema as an owned handle.
func (b *Bridge) ConfigSchemaHandle() unsafe.Pointer {
	return handleOf(b.ConfigSchema)
}

// HTTPRequestJSONView is HTTPRequestJSON over a borrowed view.
func (b *Bridge) HTTPRequestJSONView(data unsafe.Pointer, size int) unsafe.Pointer {
	text := abi.CopyView(data, size)
	return handleOf(func() string { return b.HTTPRequestJSON(context.Background(), text) })
}

// InvokeView is Invoke over two borrowed views.
func (b *Bridge) InvokeView(name unsafe.Pointer, nameSize int, payload unsafe.Pointer, payloadSize int) unsafe.Pointer {
	n := abi.CopyView(name, nameSize)
	p := abi.CopyView(payload, payloadSize)
	return handleOf(func() string { return b.Invoke(context.Background(), n, p) })
}

// Release frees a handle produced by this package. It is a no-op for nil,
// unknown and already released handles.
func Release(handle unsafe.Pointer) {
	abi.Release(handle)
}

// LiveHandles reports how many handles have not been released.
func LiveHandles() int {
	count, _ := abi.Stats()
	return count
}

// handleOf runs fn and returns its text as a new handle. A panic becomes an
// "Error: internal: ..." text so nothing unwinds into the caller.
func handleOf(fn func() string) unsafe.Pointer {
	return abi.NewString(guard(fn))
}

func guard(fn func() string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("entry point panicked", "panic", r)
			out = "Error: internal: " + hostfuncs.PanicMessage(r)
		}
	}()
	return fn()
}
