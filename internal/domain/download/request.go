package download

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/narwhalmedia/segload/pkg/errors"
)

const (
	// DefaultParallelism is the number of segments transferred concurrently per task
	DefaultParallelism = 2
	// DefaultChunkSize is the planned size of one segment
	DefaultChunkSize int64 = 5 * 1024 * 1024
	// MaxTaskIDLength bounds explicit request ids to what the record store can key on
	MaxTaskIDLength = 64
)

// Request describes one resource to download. It is immutable once built.
type Request struct {
	url         string
	target      string
	fileName    string
	requestID   string
	headers     map[string]string
	parallelism int
	priority    int
	noSplit     bool
	callback    Callback[string]
}

// RequestOption configures a Request
type RequestOption func(*Request)

// WithTarget sets the final file path
func WithTarget(target string) RequestOption {
	return func(r *Request) { r.target = target }
}

// WithFileName sets the display file name
func WithFileName(name string) RequestOption {
	return func(r *Request) { r.fileName = name }
}

// WithRequestID overrides the URL-derived task identity
func WithRequestID(id string) RequestOption {
	return func(r *Request) { r.requestID = id }
}

// WithHeaders merges headers into the request
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *Request) {
		for k, v := range headers {
			r.headers[k] = v
		}
	}
}

// WithParallelism sets how many segments run at once. Values <= 0 are ignored.
func WithParallelism(n int) RequestOption {
	return func(r *Request) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithPriority sets the scheduling priority; higher runs first
func WithPriority(p int) RequestOption {
	return func(r *Request) { r.priority = p }
}

// WithNoSplit downloads the resource as a single segment
func WithNoSplit(noSplit bool) RequestOption {
	return func(r *Request) { r.noSplit = noSplit }
}

// WithCallback attaches the submitting caller's callback
func WithCallback(cb Callback[string]) RequestOption {
	return func(r *Request) { r.callback = cb }
}

// NewRequest builds a request for rawURL
func NewRequest(rawURL string, opts ...RequestOption) (*Request, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.InvalidRequest("url is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.InvalidRequest("invalid url: " + rawURL)
	}

	r := &Request{
		url:         rawURL,
		headers:     make(map[string]string),
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.requestID) > MaxTaskIDLength {
		return nil, errors.InvalidRequest(fmt.Sprintf("request id longer than %d bytes", MaxTaskIDLength))
	}

	if r.fileName == "" {
		if r.target != "" {
			r.fileName = filepath.Base(r.target)
		} else {
			r.fileName = FileNameFromURL(u)
		}
	}
	if r.target == "" {
		r.target = r.fileName
	}
	return r, nil
}

// URL returns the resource URL
func (r *Request) URL() string { return r.url }

// Target returns the final file path
func (r *Request) Target() string { return r.target }

// FileName returns the display file name
func (r *Request) FileName() string { return r.fileName }

// Parallelism returns the number of concurrent segments
func (r *Request) Parallelism() int { return r.parallelism }

// Priority returns the scheduling priority
func (r *Request) Priority() int { return r.priority }

// NoSplit reports whether segmentation is disabled
func (r *Request) NoSplit() bool { return r.noSplit }

// Callback returns the submitting caller's callback, possibly nil
func (r *Request) Callback() Callback[string] { return r.callback }

// Headers returns a copy of the request headers
func (r *Request) Headers() map[string]string {
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// TaskID returns the explicit request id, or the MD5 of the URL
func (r *Request) TaskID() string {
	if r.requestID != "" {
		return r.requestID
	}
	return TaskIDForURL(r.url)
}

// TaskIDForURL derives the task identity used for de-duplication
func TaskIDForURL(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// FileNameFromURL extracts the last path element of u, falling back to "download"
func FileNameFromURL(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "download"
	}
	return name
}

// ResourceInfo is the metadata fetched from the server at the start of every run
type ResourceInfo struct {
	ContentType   string
	ContentLength int64
	AcceptRanges  string
	ETag          string
	LastModified  string
}

// SupportsRanges reports whether the server advertises byte-range requests
func (i *ResourceInfo) SupportsRanges() bool {
	return strings.EqualFold(strings.TrimSpace(i.AcceptRanges), "bytes")
}
