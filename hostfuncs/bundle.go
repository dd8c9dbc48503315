package hostfuncs

import (
	"context"
	"maps"
	"strings"
)

// HostFuncBundle is a named group of handlers registered together.
type HostFuncBundle interface {
	Handlers() map[string]ByteHandler
}

type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return maps.Clone(b.handlers)
}

// FetchBundle exposes HTTP fetching:
//
//   - http_get: payload is a URL, response is Fetcher text ("Status: ...").
//   - http_request: HTTPRequest JSON in, HTTPResponse JSON out.
//
// Both share f's connection pool.
func FetchBundle(f *Fetcher) HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"http_get": NewTextHandler(func(ctx context.Context, url string) string {
				return f.Get(ctx, strings.TrimSpace(url)).Body()
			}),
			"http_request": NewJSONHandler(func(ctx context.Context, req HTTPRequest) HTTPResponse {
				return f.Do(ctx, req)
			}),
		},
	}
}

// InspectBundle exposes inspect_ip (text in, classification line out).
func InspectBundle() HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"inspect_ip": NewTextHandler(InspectIPHandler),
		},
	}
}

// SSRFCheckRequest asks whether an address is a safe outbound target.
type SSRFCheckRequest struct {
	// Address is "host", "host:port" or an IP literal.
	Address string `json:"address"`
}

// SSRFCheckResponse mirrors NetfilterResult.
type SSRFCheckResponse struct {
	Reason     string `json:"reason,omitempty"`
	ResolvedIP string `json:"resolved_ip,omitempty"`
	Allowed    bool   `json:"allowed"`
}

// NetfilterBundle exposes ssrf_check.
func NetfilterBundle(opts ...NetfilterOption) HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"ssrf_check": NewJSONHandler(func(ctx context.Context, req SSRFCheckRequest) SSRFCheckResponse {
				return SSRFCheckResponse(ValidateAddressContext(ctx, req.Address, opts...))
			}),
		},
	}
}

// GeoIPBundle exposes geoip_country (address text in, CountryText out).
// lookup may be nil, in which case every call reports a missing database.
func GeoIPBundle(lookup CountryLookup) HostFuncBundle {
	return &staticBundle{
		handlers: map[string]ByteHandler{
			"geoip_country": NewTextHandler(func(_ context.Context, text string) string {
				return CountryText(lookup, text)
			}),
		},
	}
}

type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Handlers() map[string]ByteHandler {
	result := make(map[string]ByteHandler)
	for _, bundle := range b.bundles {
		maps.Copy(result, bundle.Handlers())
	}
	return result
}

// CombineBundles merges bundles; later bundles win on name clashes.
func CombineBundles(bundles ...HostFuncBundle) HostFuncBundle {
	return &compositeBundle{bundles: bundles}
}

// AllBundles returns http_get, http_request, inspect_ip, ssrf_check and
// geoip_country.
func AllBundles(f *Fetcher, lookup CountryLookup) HostFuncBundle {
	return CombineBundles(
		FetchBundle(f),
		InspectBundle(),
		NetfilterBundle(),
		GeoIPBundle(lookup),
	)
}

// WithBundle registers every handler of bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for name, handler := range bundle.Handlers() {
			b.add(name, handler)
		}
	}
}
