// Package log routes slog records to a sink registered by the embedding
// host, falling back to text on stderr while none is registered.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
)

// Sink receives one JSON-encoded LogMessageWire per record. It may be called
// from any goroutine concurrently.
type Sink func(level slog.Level, payload []byte)

var currentSink atomic.Pointer[Sink]

// SetSink installs s process-wide. A nil s restores the stderr fallback.
func SetSink(s Sink) {
	if s == nil {
		currentSink.Store(nil)
		return
	}
	currentSink.Store(&s)
}

func loadSink() Sink {
	if p := currentSink.Load(); p != nil {
		return *p
	}
	return nil
}

// Handler implements slog.Handler.
type Handler struct {
	fallback slog.Handler
	opts     handlerConfig
	attrs    []slog.Attr
	groups   []string
}

// HandlerOption configures a Handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	level     slog.Leveler
	writer    io.Writer
	addSource bool
}

func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		level:  slog.LevelInfo,
		writer: os.Stderr,
	}
}

// WithLevel sets the minimum level. Pass a *slog.LevelVar to change it later.
func WithLevel(level slog.Leveler) HandlerOption {
	return func(c *handlerConfig) {
		if level != nil {
			c.level = level
		}
	}
}

// WithSource records the caller's file and line.
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// WithFallbackWriter replaces stderr as the destination used without a sink.
func WithFallbackWriter(w io.Writer) HandlerOption {
	return func(c *handlerConfig) {
		if w != nil {
			c.writer = w
		}
	}
}

// NewHandler creates a Handler.
func NewHandler(opts ...HandlerOption) *Handler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Handler{
		opts: cfg,
		fallback: slog.NewTextHandler(cfg.writer, &slog.HandlerOptions{
			Level:     cfg.level,
			AddSource: cfg.addSource,
		}),
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level.Level()
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	sink := loadSink()
	if sink == nil {
		return h.fallback.Handle(ctx, record)
	}

	msg := LogMessageWire{
		Timestamp: record.Time,
		Level:     record.Level.String(),
		Message:   record.Message,
	}
	if h.opts.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		msg.Source = fmt.Sprintf("%s:%d", frame.File, frame.Line)
	}

	msg.Attrs = make([]LogAttrWire, 0, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		msg.Attrs = appendAttrWire(msg.Attrs, "", a)
	}
	prefix := groupPrefix(h.groups)
	record.Attrs(func(a slog.Attr) bool {
		msg.Attrs = appendAttrWire(msg.Attrs, prefix, a)
		return true
	})

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal log record: %w", err)
	}
	sink(record.Level, payload)
	return nil
}

// WithAttrs qualifies attrs with the open groups so they survive later
// WithGroup calls unchanged.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := h.clone()
	prefix := groupPrefix(h.groups)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + a.Key
		}
		nh.attrs = append(nh.attrs, a)
	}
	nh.fallback = h.fallback.WithAttrs(attrs)
	return nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	nh.fallback = h.fallback.WithGroup(name)
	return nh
}

func (h *Handler) clone() *Handler {
	return &Handler{
		fallback: h.fallback,
		opts:     h.opts,
		attrs:    slices.Clip(h.attrs),
		groups:   slices.Clip(h.groups),
	}
}

func groupPrefix(groups []string) string {
	prefix := ""
	for _, g := range groups {
		prefix += g + "."
	}
	return prefix
}

var (
	installOnce sync.Once
	level       slog.LevelVar
)

// Install makes a Handler the process default logger on first call. Later
// calls only change the level.
func Install(l slog.Level) {
	level.Set(l)
	installOnce.Do(func() {
		slog.SetDefault(slog.New(NewHandler(WithLevel(&level))))
	})
}

// Level returns the level set by the last Install.
func Level() slog.Level {
	return level.Level()
}
