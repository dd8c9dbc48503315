package hostfuncs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/net/html/charset"
)

// Fetcher performs requests over one long-lived transport, so connections
// are pooled across calls. It is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	transport http.RoundTripper
	cfg       httpConfig
}

// NewFetcher builds a Fetcher from the same options PerformHTTPRequest accepts.
func NewFetcher(opts ...HTTPOption) *Fetcher {
	cfg := defaultHTTPConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	rt := newTransport(cfg)
	return &Fetcher{
		client:    newClient(cfg, rt),
		transport: rt,
		cfg:       cfg,
	}
}

// CloseIdleConnections closes pooled connections that are not in use.
func (f *Fetcher) CloseIdleConnections() {
	f.client.CloseIdleConnections()
}

// Do executes a structured request. Timeout and redirect settings in req
// override the Fetcher's for this call; the body is capped at the configured
// maximum size.
func (f *Fetcher) Do(ctx context.Context, req HTTPRequest) HTTPResponse {
	cfg := f.cfg
	applyRequestConfig(&req, &cfg)

	if err := validateHTTPRequest(&req); err != nil {
		return HTTPResponse{Error: err}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	return executeHTTPRequest(ctx, newClient(cfg, f.transport), req, cfg.maxBodySize)
}

// FetchResult is the outcome of one GET. Err is a transport failure (no
// response at all); ReadErr is a failure reading or decoding the body after
// the status line arrived.
type FetchResult struct {
	Err        error
	ReadErr    error
	URL        string
	Text       string
	StatusCode int
}

// Get fetches url and decodes the whole body to text.
func (f *Fetcher) Get(ctx context.Context, url string) FetchResult {
	res := FetchResult{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Err = err
		return res
	}

	slog.InfoContext(ctx, "fetching url", "url", url)
	resp, err := f.client.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "request failed", "url", url, "error", err)
		res.Err = err
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	res.StatusCode = resp.StatusCode
	slog.InfoContext(ctx, "received status", "url", url, "status", resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		res.ReadErr = err
		return res
	}

	res.Text, res.ReadErr = decodeText(raw, resp.Header.Get("Content-Type"))
	return res
}

// Body renders the result for the synchronous path: the status line followed
// by the body, or a description of the failure.
func (r FetchResult) Body() string {
	if r.Err != nil {
		return "HTTP Request failed: " + r.Err.Error()
	}
	if r.ReadErr != nil {
		return fmt.Sprintf("Status: %s\nFailed to read response body: %v", StatusLine(r.StatusCode), r.ReadErr)
	}
	return fmt.Sprintf("Status: %s\n%s", StatusLine(r.StatusCode), r.Text)
}

// Summary renders the result for the asynchronous path: URL, status and
// body length in bytes.
func (r FetchResult) Summary() string {
	if r.Err != nil {
		return fmt.Sprintf("[%s] Network error: %v", r.URL, r.Err)
	}
	if r.ReadErr != nil {
		return fmt.Sprintf("[%s] Status: %s (Error reading body: %v)", r.URL, StatusLine(r.StatusCode), r.ReadErr)
	}
	return fmt.Sprintf("[%s] Status: %s\nBody length: %d", r.URL, StatusLine(r.StatusCode), len(r.Text))
}

// decodeText converts raw to UTF-8 using the charset declared in contentType.
// Missing or unknown charsets are treated as UTF-8; invalid sequences become
// U+FFFD.
func decodeText(raw []byte, contentType string) (string, error) {
	label := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			label = params["charset"]
		}
	}

	if label != "" {
		enc, name := charset.Lookup(label)
		if enc != nil && name != "utf-8" {
			decoded, err := enc.NewDecoder().Bytes(raw)
			if err != nil {
				return "", fmt.Errorf("decoding %s body: %w", name, err)
			}
			raw = decoded
		}
	}

	return strings.ToValidUTF8(string(raw), "\uFFFD"), nil
}
