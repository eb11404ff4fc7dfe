package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"

	DefaultUserAgent = "go-webhooks/1"
)

const (
	defaultRESTClientTimeout           = 30 * time.Second
	defaultRESTResponseBodyLimit int64 = 10 << 20
)

// Request is one outbound call. Headers are applied after the adapter's
// default headers.
type Request struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

// Response carries at most the configured number of body bytes. Truncated is
// set when the receiver sent more.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Truncated  bool
	Duration   time.Duration
}

// Adapter executes a request for the schemes it declares.
type Adapter interface {
	Schemes() []string
	Do(ctx context.Context, req Request) (Response, error)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter delivers webhook calls over http and https. Any status the
// receiver answers with is a Response; only failures to complete the
// exchange are errors.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{"User-Agent": DefaultUserAgent},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Schemes() []string {
	return []string{SchemeHTTP, SchemeHTTPS}
}

func (a *RESTAdapter) Do(ctx context.Context, req Request) (Response, error) {
	if a == nil || a.Client == nil {
		return Response{}, transportError("transport: rest adapter requires an http client",
			goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newHTTPRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}
	target := httpReq.URL.String()

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return Response{}, transportWrapError(err, goerrors.CategoryExternal, "transport: execute http request",
			http.StatusBadGateway, map[string]any{"method": httpReq.Method, "url": target})
	}
	defer httpRes.Body.Close()

	body, truncated, err := readLimited(httpRes, resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes))
	if err != nil {
		return Response{}, err
	}
	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Truncated:  truncated,
		Duration:   time.Since(startedAt),
	}, nil
}

// newHTTPRequest defaults the method to POST and requires an absolute url.
func (a *RESTAdapter) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	rawURL := strings.TrimSpace(req.URL)
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: invalid request url",
			http.StatusBadRequest, map[string]any{"url": rawURL})
	}
	if parsed.Host == "" {
		return nil, transportError("transport: request url host is required",
			goerrors.CategoryBadInput, http.StatusBadRequest, map[string]any{"url": parsed.String()})
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, parsed.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: create http request",
			http.StatusBadRequest, map[string]any{"method": method, "url": parsed.String()})
	}
	setHeaders(httpReq.Header, a.DefaultHeaders)
	setHeaders(httpReq.Header, req.Headers)
	return httpReq, nil
}

// readLimited keeps the first limit bytes of the body and discards the rest.
// The receiver already answered, so an oversized body is not a failure.
func readLimited(res *http.Response, limit int64) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(res.Body, limit))
	if err != nil {
		return nil, false, transportWrapError(err, goerrors.CategoryExternal, "transport: read response body",
			http.StatusBadGateway, map[string]any{"status_code": res.StatusCode})
	}
	discarded, _ := io.Copy(io.Discard, res.Body)
	return body, discarded > 0, nil
}

func setHeaders(dst http.Header, values map[string]string) {
	for key, value := range values {
		if key = strings.TrimSpace(key); key != "" {
			dst.Set(key, strings.TrimSpace(value))
		}
	}
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	switch {
	case requestLimit > 0:
		return requestLimit
	case adapterLimit > 0:
		return adapterLimit
	}
	return defaultRESTResponseBodyLimit
}

var _ Adapter = (*RESTAdapter)(nil)
