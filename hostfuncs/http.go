package hostfuncs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Error codes reported in HTTPError.Code.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeTimeout           = "TIMEOUT"
	CodeHostNotFound      = "HOST_NOT_FOUND"
	CodeConnectionRefused = "CONNECTION_REFUSED"
	CodeSSRFBlocked       = "SSRF_BLOCKED"
	CodeTooManyRedirects  = "TOO_MANY_REDIRECTS"
	CodeReadBodyFailed    = "READ_BODY_FAILED"
	CodeRequestFailed     = "REQUEST_FAILED"
)

var (
	errSSRFBlocked      = errors.New("SSRF protection")
	errTooManyRedirects = errors.New("too many redirects")
)

// HTTPRequest is the structured form of an outbound request.
type HTTPRequest struct {
	// Headers are set on the request, one value per name.
	Headers map[string]string `json:"headers,omitempty"`

	// FollowRedirects overrides the configured redirect policy when set.
	FollowRedirects *bool `json:"follow_redirects,omitempty"`

	// Method defaults to GET.
	Method string `json:"method,omitempty"`

	URL string `json:"url"`

	Body []byte `json:"body,omitempty"`

	// Timeout in milliseconds; zero keeps the configured timeout.
	Timeout int `json:"timeout_ms,omitempty"`

	// MaxRedirects overrides the configured limit when set; 0 follows none.
	MaxRedirects *int `json:"max_redirects,omitempty"`
}

// HTTPResponse is the structured result of PerformHTTPRequest.
type HTTPResponse struct {
	Headers map[string][]string `json:"headers,omitempty"`

	// Error is set when the request could not be completed.
	Error *HTTPError `json:"error,omitempty"`

	Body []byte `json:"body,omitempty"`

	StatusCode int `json:"status_code"`

	// Status is the status line, e.g. "200 OK".
	Status string `json:"status,omitempty"`

	LatencyMs int64 `json:"latency_ms,omitempty"`

	// BodyTruncated reports that the body hit the size limit.
	BodyTruncated bool `json:"body_truncated,omitempty"`
}

// HTTPError is a classified request failure.
type HTTPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// HTTPOption configures the HTTP client used by PerformHTTPRequest and Fetcher.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	transport       http.RoundTripper
	timeout         time.Duration
	maxRedirects    int
	maxBodySize     int64
	followRedirects bool
	ssrfProtection  bool
	allowPrivate    bool
}

func defaultHTTPConfig() httpConfig {
	return httpConfig{
		timeout:         30 * time.Second,
		maxRedirects:    10,
		followRedirects: true,
		maxBodySize:     10 * 1024 * 1024,
	}
}

// WithHTTPRequestTimeout sets the overall request timeout.
func WithHTTPRequestTimeout(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPMaxRedirects sets the maximum number of redirects to follow. With 0
// the first response is returned even when it is a redirect.
func WithHTTPMaxRedirects(n int) HTTPOption {
	return func(c *httpConfig) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithHTTPFollowRedirects controls whether redirects are followed at all.
func WithHTTPFollowRedirects(follow bool) HTTPOption {
	return func(c *httpConfig) {
		c.followRedirects = follow
	}
}

// WithHTTPMaxBodySize caps the number of body bytes Fetcher.Do reads.
// Fetcher.Get always reads the whole body.
func WithHTTPMaxBodySize(size int64) HTTPOption {
	return func(c *httpConfig) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithHTTPSSRFProtection validates every dial target with ValidateAddress and
// connects to the validated IP. Private and loopback targets are refused
// unless allowPrivate is set. Proxies from the environment are not used.
func WithHTTPSSRFProtection(allowPrivate bool) HTTPOption {
	return func(c *httpConfig) {
		c.ssrfProtection = true
		c.allowPrivate = allowPrivate
	}
}

// WithHTTPTransport replaces the underlying round tripper. SSRF protection is
// not applied to a custom transport.
func WithHTTPTransport(rt http.RoundTripper) HTTPOption {
	return func(c *httpConfig) {
		c.transport = rt
	}
}

// pinnedDialer resolves and validates the target once, then dials that
// address so a second resolution cannot rebind the host. TLS still verifies
// the request's hostname.
func pinnedDialer(allowPrivate bool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	var opts []NetfilterOption
	if allowPrivate {
		opts = append(opts, WithBlockPrivate(false), WithBlockLocalhost(false))
	}
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		result := ValidateAddressContext(ctx, host, opts...)
		if !result.Allowed {
			return nil, fmt.Errorf("%w: %s", errSSRFBlocked, result.Reason)
		}

		target := result.ResolvedIP
		if target == "" {
			target = host
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(target, port))
	}
}

// PerformHTTPRequest executes req with a client built for this call alone and
// never returns a Go error: failures are classified into HTTPResponse.Error.
// Long-lived callers should keep a Fetcher and use Fetcher.Do so connections
// are pooled.
func PerformHTTPRequest(ctx context.Context, req HTTPRequest, opts ...HTTPOption) HTTPResponse {
	f := NewFetcher(opts...)
	defer f.CloseIdleConnections()
	return f.Do(ctx, req)
}

func applyRequestConfig(req *HTTPRequest, cfg *httpConfig) {
	if req.Timeout > 0 {
		cfg.timeout = time.Duration(req.Timeout) * time.Millisecond
	}
	if req.MaxRedirects != nil && *req.MaxRedirects >= 0 {
		cfg.maxRedirects = *req.MaxRedirects
	}
	if req.FollowRedirects != nil {
		cfg.followRedirects = *req.FollowRedirects
	}
}

func validateHTTPRequest(req *HTTPRequest) *HTTPError {
	if strings.TrimSpace(req.URL) == "" {
		return &HTTPError{Code: CodeInvalidRequest, Message: "URL is required"}
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	return nil
}

func executeHTTPRequest(ctx context.Context, client *http.Client, req HTTPRequest, maxBodySize int64) HTTPResponse {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), req.URL, body)
	if err != nil {
		return HTTPResponse{Error: &HTTPError{Code: CodeInvalidRequest, Message: err.Error()}}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return HTTPResponse{
			LatencyMs: latency.Milliseconds(),
			Error:     &HTTPError{Code: classifyHTTPError(ctx, err), Message: err.Error()},
		}
	}
	defer func() { _ = resp.Body.Close() }()

	out := HTTPResponse{
		StatusCode: resp.StatusCode,
		Status:     StatusLine(resp.StatusCode),
		Headers:    resp.Header,
		LatencyMs:  latency.Milliseconds(),
	}
	raw, truncated, err := readLimited(resp.Body, maxBodySize)
	if err != nil {
		out.Error = &HTTPError{Code: CodeReadBodyFailed, Message: err.Error()}
		return out
	}
	out.Body = raw
	out.BodyTruncated = truncated
	return out
}

// newTransport returns the round tripper shared by every client built for cfg.
func newTransport(cfg httpConfig) http.RoundTripper {
	if cfg.transport != nil {
		return cfg.transport
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.ssrfProtection {
		transport.Proxy = nil
		transport.DialContext = pinnedDialer(cfg.allowPrivate)
	}
	return transport
}

// newClient wraps rt with cfg's timeout and redirect policy. Clients are
// cheap; the connection pool lives in rt.
func newClient(cfg httpConfig, rt http.RoundTripper) *http.Client {
	client := &http.Client{
		Timeout:   cfg.timeout,
		Transport: rt,
	}

	if !cfg.followRedirects || cfg.maxRedirects == 0 {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		return client
	}

	limit := cfg.maxRedirects
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= limit {
			return fmt.Errorf("%w: stopped after %d", errTooManyRedirects, limit)
		}
		return nil
	}
	return client
}

// classifyHTTPError maps a client error onto one of the Code* constants.
func classifyHTTPError(ctx context.Context, err error) string {
	var (
		dnsErr *net.DNSError
		netErr net.Error
	)
	switch {
	case errors.Is(err, errSSRFBlocked):
		return CodeSSRFBlocked
	case errors.Is(err, errTooManyRedirects):
		return CodeTooManyRedirects
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimeout
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		return CodeHostNotFound
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnectionRefused
	}
	return CodeRequestFailed
}

// readLimited reads at most limit bytes and reports whether more were available.
func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(raw)) > limit {
		return raw[:limit], true, nil
	}
	return raw, false, nil
}

// StatusLine renders a status code and its canonical reason phrase.
func StatusLine(code int) string {
	reason := http.StatusText(code)
	if reason == "" {
		reason = "<unknown status code>"
	}
	return fmt.Sprintf("%d %s", code, reason)
}
