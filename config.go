// Package interop holds the configuration shared by the C entry points and
// the host function registry.
package interop

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vss-interop/vss-go-interop/hostfuncs"
	"github.com/vss-interop/vss-go-interop/workers"
)

// Environment variables read by FromEnv.
const (
	EnvWorkers      = "VSS_INTEROP_WORKERS"
	EnvQueueSize    = "VSS_INTEROP_QUEUE_SIZE"
	EnvTimeoutMs    = "VSS_INTEROP_TIMEOUT_MS"
	EnvMaxBodyBytes = "VSS_INTEROP_MAX_BODY_BYTES"
	EnvLogLevel     = "VSS_INTEROP_LOG_LEVEL"
	EnvGeoIPDB      = "VSS_INTEROP_GEOIP_DB"
)

// Config controls the HTTP client, the async worker runtime and logging.
type Config struct {
	// Workers is the async pool size; 0 picks a size from the CPU count.
	Workers int `json:"workers" validate:"min=0,max=1024" jsonschema:"minimum=0,maximum=1024,default=0" jsonschema_description:"Async worker goroutines. 0 selects twice the CPU count with a minimum of four."`

	QueueSize int `json:"queue_size" validate:"min=0,max=1048576" jsonschema:"minimum=0,maximum=1048576,default=0" jsonschema_description:"Pending async request slots. 0 selects four per worker."`

	TimeoutMs int `json:"timeout_ms" validate:"min=1,max=600000" jsonschema:"minimum=1,maximum=600000,default=30000" jsonschema_description:"Overall request timeout in milliseconds."`

	MaxBodyBytes int64 `json:"max_body_bytes" validate:"min=1" jsonschema:"minimum=1,default=10485760" jsonschema_description:"Bytes of response body http_request reads before truncating. Plain GETs read the whole body."`

	MaxRedirects int `json:"max_redirects" validate:"min=0,max=100" jsonschema:"minimum=0,maximum=100,default=10" jsonschema_description:"Redirects followed before failing. 0 returns the redirect response itself."`

	FollowRedirects bool `json:"follow_redirects" jsonschema:"default=true"`

	// SSRFProtection pins each request to a validated address.
	SSRFProtection bool `json:"ssrf_protection" jsonschema:"default=false"`

	// AllowPrivate permits private and loopback targets under SSRFProtection.
	AllowPrivate bool `json:"allow_private" jsonschema:"default=false"`

	LogLevel string `json:"log_level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`

	// GeoIPDatabase is the path of a MaxMind country MMDB file.
	GeoIPDatabase string `json:"geoip_database,omitempty" validate:"omitempty,file" jsonschema_description:"Path to a MaxMind GeoIP2/GeoLite2 country database."`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		TimeoutMs:       30_000,
		MaxBodyBytes:    10 * 1024 * 1024,
		MaxRedirects:    10,
		FollowRedirects: true,
		LogLevel:        "info",
	}
}

// FromEnv applies the VSS_INTEROP_* variables on top of DefaultConfig, one
// at a time. A variable that is malformed or would make the configuration
// invalid is skipped and reported in the error; the others still apply, so
// the returned Config is valid either way.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	var errs []error

	apply := func(name string, set func(v string, c *Config) error) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return
		}
		next := cfg
		if err := set(v, &next); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		if err := next.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		cfg = next
	}

	apply(EnvWorkers, func(v string, c *Config) (err error) {
		c.Workers, err = strconv.Atoi(v)
		return err
	})
	apply(EnvQueueSize, func(v string, c *Config) (err error) {
		c.QueueSize, err = strconv.Atoi(v)
		return err
	})
	apply(EnvTimeoutMs, func(v string, c *Config) (err error) {
		c.TimeoutMs, err = strconv.Atoi(v)
		return err
	})
	apply(EnvMaxBodyBytes, func(v string, c *Config) (err error) {
		c.MaxBodyBytes, err = strconv.ParseInt(v, 10, 64)
		return err
	})
	apply(EnvLogLevel, func(v string, c *Config) error {
		c.LogLevel = strings.ToLower(v)
		return nil
	})
	apply(EnvGeoIPDB, func(v string, c *Config) error {
		c.GeoIPDatabase = v
		return nil
	})

	return cfg, errors.Join(errs...)
}

// DecodeConfig applies a JSON object on top of base. Keys that are absent
// keep base's values. The result is validated; on error base is returned.
func DecodeConfig(base Config, data []byte) (Config, error) {
	next := base
	if err := ValidateConfig(data, &next); err != nil {
		return base, err
	}
	return next, nil
}

// Validate checks the struct tags.
func (c Config) Validate() error {
	return ValidateStruct(&c)
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// PoolSize resolves Workers, substituting workers.DefaultSize for 0.
func (c Config) PoolSize() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return workers.DefaultSize()
}

// SlogLevel converts LogLevel; unknown names map to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HTTPOptions translates the HTTP settings for hostfuncs.
func (c Config) HTTPOptions() []hostfuncs.HTTPOption {
	opts := []hostfuncs.HTTPOption{
		hostfuncs.WithHTTPRequestTimeout(c.Timeout()),
		hostfuncs.WithHTTPMaxBodySize(c.MaxBodyBytes),
		hostfuncs.WithHTTPMaxRedirects(c.MaxRedirects),
		hostfuncs.WithHTTPFollowRedirects(c.FollowRedirects),
	}
	if c.SSRFProtection {
		opts = append(opts, hostfuncs.WithHTTPSSRFProtection(c.AllowPrivate))
	}
	return opts
}
