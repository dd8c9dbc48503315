package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interop "github.com/vss-interop/vss-go-interop"
	"github.com/vss-interop/vss-go-interop/hostfuncs"
	"github.com/vss-interop/vss-go-interop/internal/abi"
	"github.com/vss-interop/vss-go-interop/internal/testutil"
)

func newTestBridge(t *testing.T, rt http.RoundTripper, mutate ...func(*interop.Config)) *Bridge {
	t.Helper()
	cfg := interop.DefaultConfig()
	cfg.Workers = 2
	for _, m := range mutate {
		m(&cfg)
	}
	b := New(cfg, WithTransport(rt))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// view returns a borrowed view of s.
func view(s string) (unsafe.Pointer, int) {
	return unsafe.Pointer(unsafe.StringData(s)), len(s)
}

// take reads and releases a handle.
func take(t *testing.T, handle unsafe.Pointer) string {
	t.Helper()
	require.NotNil(t, handle)
	require.True(t, abi.IsLive(handle))
	s := abi.Read(handle)
	Release(handle)
	assert.False(t, abi.IsLive(handle))
	return s
}

// asyncResult collects deliveries from FetchAsyncView.
type asyncResult struct {
	mu      sync.Mutex
	results []string
	done    chan struct{}
}

func newAsyncResult(n int) *asyncResult {
	return &asyncResult{done: make(chan struct{}, n)}
}

func (r *asyncResult) deliver(handle unsafe.Pointer) {
	s := abi.Read(handle)
	abi.Release(handle)
	r.mu.Lock()
	r.results = append(r.results, s)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *asyncResult) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d callbacks arrived", i, n)
		}
	}
	// a second callback for the same request would show up here
	time.Sleep(20 * time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...)
}

func TestGetBodyView(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport("hello body"))

	url := "http://fake.test/page"
	got := take(t, b.GetBodyView(view(url)))

	assert.Equal(t, "Status: 200 OK\nhello body", got)
}

func TestGetBodyView_NetworkFailure(t *testing.T) {
	b := newTestBridge(t, testutil.RoundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}))

	got := take(t, b.GetBodyView(view("http://fake.test/")))

	assert.True(t, strings.HasPrefix(got, "HTTP Request failed: "), got)
	assert.Contains(t, got, "connection refused")
}

func TestFetchAsyncView_ExactlyOnce(t *testing.T) {
	tests := []struct {
		name   string
		rt     testutil.RoundTripFunc
		mutate func(*interop.Config)
		check  func(t *testing.T, got string)
	}{
		{
			name: "success",
			rt:   testutil.OKTransport("12345"),
			check: func(t *testing.T, got string) {
				assert.Equal(t, "[http://fake.test/a] Status: 200 OK\nBody length: 5", got)
			},
		},
		{
			name: "timeout",
			rt: func(r *http.Request) (*http.Response, error) {
				<-r.Context().Done()
				return nil, r.Context().Err()
			},
			mutate: func(c *interop.Config) { c.TimeoutMs = 30 },
			check: func(t *testing.T, got string) {
				assert.True(t, strings.HasPrefix(got, "[http://fake.test/a] Network error: "), got)
			},
		},
		{
			name: "error",
			rt: func(*http.Request) (*http.Response, error) {
				return nil, errors.New("no route to host")
			},
			check: func(t *testing.T, got string) {
				assert.True(t, strings.HasPrefix(got, "[http://fake.test/a] Network error: "), got)
				assert.Contains(t, got, "no route to host")
			},
		},
		{
			name: "panic",
			rt: func(*http.Request) (*http.Response, error) {
				panic("transport exploded")
			},
			check: func(t *testing.T, got string) {
				assert.Equal(t, "[http://fake.test/a] Internal error: transport exploded", got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mutate []func(*interop.Config)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			b := newTestBridge(t, tt.rt, mutate...)
			res := newAsyncResult(4)

			p, n := view("http://fake.test/a")
			b.FetchAsyncView(p, n, res.deliver)

			got := res.wait(t, 1)
			require.Len(t, got, 1, "callback must fire exactly once")
			tt.check(t, got[0])
		})
	}
}

func TestFetchAsyncView_ReturnsBeforeCallback(t *testing.T) {
	gate := make(chan struct{})
	b := newTestBridge(t, testutil.RoundTripFunc(func(r *http.Request) (*http.Response, error) {
		<-gate
		return testutil.OKTransport("x")(r)
	}))
	res := newAsyncResult(1)

	url := []byte("http://fake.test/slow")
	p, n := unsafe.Pointer(&url[0]), len(url)
	b.FetchAsyncView(p, n, res.deliver)

	// the borrowed view may be reused as soon as the call returns
	copy(url, "XXXXXXXXXXXXXXXXXXXXX")

	res.mu.Lock()
	assert.Empty(t, res.results)
	res.mu.Unlock()

	close(gate)
	got := res.wait(t, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "[http://fake.test/slow] Status: 200 OK\nBody length: 1", got[0])
}

func TestFetchAsync_SingleRuntimeUnderConcurrentFirstUse(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport("ok"))
	require.Zero(t, b.RuntimeBuilds())

	const callers = 64
	var (
		start sync.WaitGroup
		ready sync.WaitGroup
		count atomic.Int32
		done  = make(chan struct{}, callers)
	)
	start.Add(1)
	ready.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			ready.Done()
			start.Wait()
			b.FetchAsync("http://fake.test/", func(string) {
				count.Add(1)
				done <- struct{}{}
			})
		}()
	}
	ready.Wait()
	start.Done()

	for i := 0; i < callers; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d callbacks arrived", i)
		}
	}

	assert.Equal(t, 1, b.RuntimeBuilds())
	assert.Equal(t, int32(callers), count.Load())
}

func TestInspectIPView(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport(""))

	tests := []struct {
		input string
		want  string
	}{
		{"127.0.0.1", "[IPv4] Loopback: Yes, Multicast: No, Private: No"},
		{"10.0.0.5", "[IPv4] Loopback: No, Multicast: No, Private: Yes"},
		{"::1", "[IPv6] Loopback: Yes, Multicast: No"},
		{"not-an-ip", "Error: Invalid IP address format"},
		{"  8.8.8.8  ", "[IPv4] Loopback: No, Multicast: No, Private: No"},
		{"", "Error: Invalid IP address format"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, take(t, b.InspectIPView(view(tt.input))))
		})
	}
}

func TestInspectIPView_NilView(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport(""))
	assert.Equal(t, hostfuncs.InvalidIPText, take(t, b.InspectIPView(nil, 0)))
}

func TestConfigureView(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport(""))

	got := take(t, b.ConfigureView(view(`{"timeout_ms": 1234, "follow_redirects": false}`)))

	var applied interop.Config
	require.NoError(t, json.Unmarshal([]byte(got), &applied))
	assert.Equal(t, 1234, applied.TimeoutMs)
	assert.False(t, applied.FollowRedirects)
	assert.Equal(t, applied, b.Config())

	got = take(t, b.ConfigureView(view(`{"timeout_ms": -1}`)))
	assert.True(t, strings.HasPrefix(got, "Error: "), got)
	assert.Contains(t, got, "timeout_ms")
	assert.Equal(t, 1234, b.Config().TimeoutMs, "rejected configuration must not be applied")
}

func TestConfigure_RebuildsFetcher(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport("0123456789"))

	assert.Equal(t, "Status: 200 OK\n0123456789", b.FetchText(context.Background(), "http://fake.test/"))

	b.Configure(`{"max_body_bytes": 4}`)

	// Plain GETs keep the whole body; the cap applies to http_request.
	assert.Equal(t, "Status: 200 OK\n0123456789", b.FetchText(context.Background(), "http://fake.test/"))

	var resp hostfuncs.HTTPResponse
	require.NoError(t, json.Unmarshal([]byte(b.HTTPRequestJSON(context.Background(), `{"url":"http://fake.test/"}`)), &resp))
	assert.Equal(t, "0123", string(resp.Body))
	assert.True(t, resp.BodyTruncated)

	done := make(chan string, 1)
	b.FetchAsync("http://fake.test/", func(s string) { done <- s })
	assert.Equal(t, "[http://fake.test/] Status: 200 OK\nBody length: 10", <-done)
}

func TestConfigure_AfterRuntimeStarted(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport("ok"))
	done := make(chan struct{})
	b.FetchAsync("http://fake.test/", func(string) { close(done) })
	<-done

	got := b.Configure(`{"workers": 8}`)
	assert.False(t, strings.HasPrefix(got, "Error"), got)
	assert.Equal(t, 1, b.RuntimeBuilds())
}

func TestConfigSchemaHandle(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport(""))

	got := take(t, b.ConfigSchemaHandle())

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &schema))
	assert.Contains(t, schema, "properties")
}

func TestHTTPRequestJSONView(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport("structured"))

	got := take(t, b.HTTPRequestJSONView(view(`{"url":"http://fake.test/x","method":"GET"}`)))

	var resp hostfuncs.HTTPResponse
	require.NoError(t, json.Unmarshal([]byte(got), &resp))
	assert.Nil(t, resp.Error)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "200 OK", resp.Status)
	assert.Equal(t, "structured", string(resp.Body))
}

func TestInvokeView(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport("via registry"))

	name, nameLen := view("http_get")
	payload, payloadLen := view("http://fake.test/")
	assert.Equal(t, "Status: 200 OK\nvia registry", take(t, b.InvokeView(name, nameLen, payload, payloadLen)))

	name, nameLen = view("nope")
	var errResp hostfuncs.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(take(t, b.InvokeView(name, nameLen, nil, 0))), &errResp))
	assert.Equal(t, "NOT_FOUND", errResp.Error)

	assert.ElementsMatch(t,
		[]string{"geoip_country", "http_get", "http_request", "inspect_ip", "ssrf_check"},
		b.Registry().Names())
}

func TestGeoIPCountryView_NoDatabase(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport(""))

	assert.Equal(t, "Error: no GeoIP database configured", take(t, b.GeoIPCountryView(view("8.8.8.8"))))
	assert.Equal(t, hostfuncs.InvalidIPText, take(t, b.GeoIPCountryView(view("bogus"))))
}

func TestRelease(t *testing.T) {
	b := newTestBridge(t, testutil.OKTransport(""))
	before := LiveHandles()

	h := b.InspectIPView(view("::1"))
	assert.Equal(t, before+1, LiveHandles())

	Release(h)
	Release(h)
	Release(nil)
	assert.Equal(t, before, LiveHandles())
}

func TestGuard(t *testing.T) {
	assert.Equal(t, "fine", guard(func() string { return "fine" }))
	assert.Equal(t, "Error: internal: kaboom", guard(func() string { panic("kaboom") }))
	assert.Equal(t, "Error: internal: wrapped", guard(func() string { panic(errors.New("wrapped")) }))
}

func TestDefault(t *testing.T) {
	first := Default()
	require.NotNil(t, first)
	assert.Same(t, first, Default())
	assert.NoError(t, first.Config().Validate())
}
