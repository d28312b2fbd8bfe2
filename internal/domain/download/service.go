package download

import (
	"context"
	"io"
	"net/http"
)

// Repository persists task and segment records so transfers survive restarts
type Repository interface {
	// SaveTask inserts or replaces a task record
	SaveTask(ctx context.Context, record *TaskRecord) error

	// FindTask returns the record for taskID, or nil if none exists
	FindTask(ctx context.Context, taskID string) (*TaskRecord, error)

	// ListTasks returns every task record, most recently updated first
	ListTasks(ctx context.Context) ([]*TaskRecord, error)

	// UpdateTaskStatus sets the status of an existing record
	UpdateTaskStatus(ctx context.Context, taskID string, status Status) error

	// UpdateTaskProgress sets the progress percent of an existing record
	UpdateTaskProgress(ctx context.Context, taskID string, percent int) error

	// DeleteTask removes the task record
	DeleteTask(ctx context.Context, taskID string) error

	// SaveSegment inserts or replaces a segment record
	SaveSegment(ctx context.Context, segment *DownloadSegment) error

	// FindSegment returns the record for (taskID, number), or nil if none exists
	FindSegment(ctx context.Context, taskID string, number int) (*DownloadSegment, error)

	// ListSegments returns the segment records of taskID ordered by number
	ListSegments(ctx context.Context, taskID string) ([]*DownloadSegment, error)

	// UpdateSegmentStatus sets the status of an existing segment record
	UpdateSegmentStatus(ctx context.Context, taskID string, number int, status SegmentStatus) error

	// DeleteSegments removes every segment record of taskID
	DeleteSegments(ctx context.Context, taskID string) error
}

// FetchRequest is one GET issued through a Fetcher
type FetchRequest struct {
	URL     string
	Headers map[string]string
	// Range is sent verbatim as the Range header when non-empty
	Range string
}

// FetchResponse is a streamed HTTP response. Callers must close Body.
type FetchResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Fetcher is the HTTP capability used by transfers. Canceling ctx aborts the call
// and any read on the returned body.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// SpaceChecker reports free bytes on the volume holding path.
// ok is false when the platform cannot tell.
type SpaceChecker interface {
	FreeSpace(path string) (free int64, ok bool)
}
