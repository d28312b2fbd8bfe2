package download

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/domain/download"
)

// RequestBuilder accumulates request settings before a download is started
type RequestBuilder struct {
	manager *Manager
	url     string
	headers map[string]string
	opts    []download.RequestOption
}

func newRequestBuilder(m *Manager, url string) *RequestBuilder {
	return &RequestBuilder{
		manager: m,
		url:     url,
		headers: make(map[string]string),
		opts: []download.RequestOption{
			download.WithParallelism(m.engine.Options.Parallelism),
		},
	}
}

// SetTarget sets the destination path
func (b *RequestBuilder) SetTarget(target string) *RequestBuilder {
	b.opts = append(b.opts, download.WithTarget(target))
	return b
}

// SetFileName sets the file name used when no target is given
func (b *RequestBuilder) SetFileName(name string) *RequestBuilder {
	b.opts = append(b.opts, download.WithFileName(name))
	return b
}

// SetRequestID overrides the task id derived from the url
func (b *RequestBuilder) SetRequestID(id string) *RequestBuilder {
	b.opts = append(b.opts, download.WithRequestID(id))
	return b
}

// SetHeaders replaces the extra request headers
func (b *RequestBuilder) SetHeaders(headers map[string]string) *RequestBuilder {
	b.headers = maps.Clone(headers)
	if b.headers == nil {
		b.headers = make(map[string]string)
	}
	return b
}

// AddHeader adds one extra request header
func (b *RequestBuilder) AddHeader(key, value string) *RequestBuilder {
	b.headers[key] = value
	return b
}

// SetParallelNum sets how many segments transfer at once. Values below one are ignored.
func (b *RequestBuilder) SetParallelNum(n int) *RequestBuilder {
	if n <= 0 {
		b.manager.logger.Warn("ignoring non-positive parallelism", zap.Int("parallelism", n))
		return b
	}
	b.opts = append(b.opts, download.WithParallelism(n))
	return b
}

// SetPriority sets the admission priority; higher runs first
func (b *RequestBuilder) SetPriority(p int) *RequestBuilder {
	b.opts = append(b.opts, download.WithPriority(p))
	return b
}

// SetNoSplit transfers the resource as a single segment
func (b *RequestBuilder) SetNoSplit(noSplit bool) *RequestBuilder {
	b.opts = append(b.opts, download.WithNoSplit(noSplit))
	return b
}

// SetCallback sets the callback notified about this request
func (b *RequestBuilder) SetCallback(cb download.Callback[string]) *RequestBuilder {
	b.opts = append(b.opts, download.WithCallback(cb))
	return b
}

// Build validates the settings and returns the request
func (b *RequestBuilder) Build() (*download.Request, error) {
	opts := append(slices.Clone(b.opts), download.WithHeaders(b.headers))
	return download.NewRequest(b.url, opts...)
}

// Start builds the request and submits it to the manager
func (b *RequestBuilder) Start() (*Task, error) {
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.manager.Start(req)
}
