package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"github.com/narwhalmedia/segload/internal/config"
	"github.com/narwhalmedia/segload/internal/domain/download"
	"github.com/narwhalmedia/segload/pkg/errors"
)

// HTTPFetcher implements download.Fetcher on top of a resty client
type HTTPFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPFetcher creates a fetcher with transport-level timeouts only; bodies
// stream for as long as the caller's context allows.
func NewHTTPFetcher(cfg config.HTTPConfig, rateLimit int64, logger *zap.Logger) *HTTPFetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: cfg.DialTimeout,
		}).DialContext,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		DisableCompression:    true,
	}

	client := resty.New().
		SetTransport(transport).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept-Encoding", "identity")

	f := &HTTPFetcher{
		client: client,
		logger: logger.Named("http-fetcher"),
	}
	if rateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(rateLimit), int(rateLimit))
	}
	return f
}

// Fetch issues a GET and returns the streamed response
func (f *HTTPFetcher) Fetch(ctx context.Context, req download.FetchRequest) (*download.FetchResponse, error) {
	r := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.Range != "" {
		r.SetHeader("Range", req.Range)
	}

	resp, err := r.Get(req.URL)
	if err != nil {
		return nil, errors.Transport(fmt.Sprintf("GET %s", req.URL), err)
	}

	f.logger.Debug("response received",
		zap.String("url", req.URL),
		zap.String("range", req.Range),
		zap.Int("status", resp.StatusCode()),
	)

	body := resp.Body
	if body == nil {
		body = http.NoBody
	}
	if f.limiter != nil {
		body = &rateLimitedReader{ctx: ctx, body: body, limiter: f.limiter}
	}

	return &download.FetchResponse{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       body,
	}, nil
}

// Close releases idle connections
func (f *HTTPFetcher) Close() error {
	return f.client.Close()
}

// FetchResourceInfo issues a GET and reads the metadata headers, discarding the body
func FetchResourceInfo(ctx context.Context, fetcher download.Fetcher, url string, headers map[string]string) (*download.ResourceInfo, error) {
	resp, err := fetcher.Fetch(ctx, download.FetchRequest{URL: url, Headers: headers})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Transport(fmt.Sprintf("GET %s", url), fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	return &download.ResourceInfo{
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: parseContentLength(resp.Header.Get("Content-Length")),
		AcceptRanges:  resp.Header.Get("Accept-Ranges"),
		ETag:          resp.Header.Get("ETag"),
		LastModified:  resp.Header.Get("Last-Modified"),
	}, nil
}

// parseContentLength returns -1 when the header is absent or malformed
func parseContentLength(v string) int64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// parseContentRange parses "bytes 200-1023/1024". total is -1 for "*".
func parseContentRange(v string) (start, end, total int64, ok bool) {
	byteRange, found := strings.CutPrefix(strings.TrimSpace(v), "bytes ")
	if !found {
		return 0, 0, 0, false
	}
	span, size, found := strings.Cut(byteRange, "/")
	if !found {
		return 0, 0, 0, false
	}
	first, last, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, 0, false
	}

	var err error
	if start, err = strconv.ParseInt(first, 10, 64); err != nil {
		return 0, 0, 0, false
	}
	if end, err = strconv.ParseInt(last, 10, 64); err != nil || end < start {
		return 0, 0, 0, false
	}
	total = -1
	if size != "*" {
		if total, err = strconv.ParseInt(size, 10, 64); err != nil || total <= end {
			return 0, 0, 0, false
		}
	}
	return start, end, total, true
}

// rateLimitedReader throttles reads through a shared token bucket
type rateLimitedReader struct {
	ctx     context.Context
	body    io.ReadCloser
	limiter *rate.Limiter
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := r.body.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (r *rateLimitedReader) Close() error {
	return r.body.Close()
}
