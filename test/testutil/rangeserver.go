package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// RangeServer serves one in-memory resource and honors single byte-range requests
type RangeServer struct {
	*httptest.Server

	mu           sync.Mutex
	content      []byte
	etag         string
	lastModified string
	acceptRanges bool
	omitLength   bool
	chunkSize    int
	chunkDelay   time.Duration
	failRanges   int
	rangeShift   int64
	ranges       []string

	requests      atomic.Int64
	rangeRequests atomic.Int64
}

// NewRangeServer starts a server for content. It is closed when the test ends.
func NewRangeServer(t testing.TB, content []byte) *RangeServer {
	s := &RangeServer{
		content:      content,
		etag:         `"v1"`,
		lastModified: "Mon, 02 Jan 2006 15:04:05 GMT",
		acceptRanges: true,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Content builds n bytes of deterministic, non-repeating-per-segment data
func Content(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + i/251)
	}
	return b
}

// SetContent replaces the resource and its ETag
func (s *RangeServer) SetContent(content []byte, etag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = content
	s.etag = etag
}

// SetAcceptRanges toggles range support. Without it every request gets the full body.
func (s *RangeServer) SetAcceptRanges(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acceptRanges = ok
}

// SetOmitLength drops Content-Length from full responses
func (s *RangeServer) SetOmitLength(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitLength = omit
}

// SetThrottle writes bodies in chunks of size bytes, sleeping delay between them
func (s *RangeServer) SetThrottle(size int, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkSize = size
	s.chunkDelay = delay
}

// FailRanges makes the next n range requests answer 500
func (s *RangeServer) FailRanges(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRanges = n
}

// ShiftRanges makes range responses start n bytes after the requested offset.
// Content-Range reports the shifted start.
func (s *RangeServer) ShiftRanges(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rangeShift = n
}

// Requests returns the number of requests served
func (s *RangeServer) Requests() int64 {
	return s.requests.Load()
}

// RangeRequests returns the number of requests carrying a Range header
func (s *RangeServer) RangeRequests() int64 {
	return s.rangeRequests.Load()
}

// Ranges returns the Range headers received so far, in arrival order
func (s *RangeServer) Ranges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ranges))
	copy(out, s.ranges)
	return out
}

func (s *RangeServer) handle(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	s.mu.Lock()
	content := s.content
	acceptRanges := s.acceptRanges
	omitLength := s.omitLength
	chunkSize, chunkDelay := s.chunkSize, s.chunkDelay
	shift := s.rangeShift
	rangeHeader := r.Header.Get("Range")
	fail := false
	if rangeHeader != "" {
		s.rangeRequests.Add(1)
		s.ranges = append(s.ranges, rangeHeader)
		if s.failRanges > 0 {
			s.failRanges--
			fail = true
		}
	}
	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	if s.etag != "" {
		h.Set("ETag", s.etag)
	}
	if s.lastModified != "" {
		h.Set("Last-Modified", s.lastModified)
	}
	s.mu.Unlock()

	if fail {
		http.Error(w, "injected failure", http.StatusInternalServerError)
		return
	}

	if !acceptRanges || rangeHeader == "" {
		if acceptRanges {
			h.Set("Accept-Ranges", "bytes")
		} else {
			h.Set("Accept-Ranges", "none")
		}
		if !omitLength {
			h.Set("Content-Length", strconv.Itoa(len(content)))
		}
		w.WriteHeader(http.StatusOK)
		writeThrottled(w, r, content, chunkSize, chunkDelay)
		return
	}

	start, end, err := parseRange(rangeHeader, int64(len(content)))
	if err != nil {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", len(content)))
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return
	}

	start = min(start+shift, end)

	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(content)))
	h.Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	writeThrottled(w, r, content[start:end+1], chunkSize, chunkDelay)
}

func writeThrottled(w http.ResponseWriter, r *http.Request, body []byte, size int, delay time.Duration) {
	if size <= 0 {
		w.Write(body)
		return
	}
	flusher, _ := w.(http.Flusher)
	for len(body) > 0 {
		n := min(size, len(body))
		if _, err := w.Write(body[:n]); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		body = body[n:]

		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
	}
}

func parseRange(v string, size int64) (int64, int64, error) {
	byteRange, ok := strings.CutPrefix(v, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("unsupported range unit")
	}
	first, last, ok := strings.Cut(byteRange, "-")
	if !ok {
		return 0, 0, fmt.Errorf("malformed range")
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed range start")
	}
	end := size - 1
	if last != "" {
		if end, err = strconv.ParseInt(last, 10, 64); err != nil {
			return 0, 0, fmt.Errorf("malformed range end")
		}
	}
	if start < 0 || start > end || start >= size {
		return 0, 0, fmt.Errorf("range not satisfiable")
	}
	return start, min(end, size-1), nil
}
