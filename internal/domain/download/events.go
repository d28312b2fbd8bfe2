package download

import (
	domainevents "github.com/narwhalmedia/segload/internal/domain/events"
)

// AggregateType is the aggregate name used on download events
const AggregateType = "Download"

// Download event types
const (
	EventDownloadStarted   = "DownloadStarted"
	EventDownloadProgress  = "DownloadProgress"
	EventDownloadPaused    = "DownloadPaused"
	EventDownloadCompleted = "DownloadCompleted"
	EventDownloadFailed    = "DownloadFailed"
)

// DownloadStarted is emitted when a task starts running
type DownloadStarted struct {
	domainevents.BaseEvent
	URL    string `json:"url"`
	Target string `json:"target"`
}

// NewDownloadStarted creates a new DownloadStarted event
func NewDownloadStarted(taskID string, req *Request) *DownloadStarted {
	return &DownloadStarted{
		BaseEvent: domainevents.NewBaseEvent(taskID, AggregateType, EventDownloadStarted, 1),
		URL:       req.URL(),
		Target:    req.Target(),
	}
}

// DownloadProgress is emitted when the task percent advances
type DownloadProgress struct {
	domainevents.BaseEvent
	BytesDownloaded int64 `json:"bytes_downloaded"`
	TotalBytes      int64 `json:"total_bytes"`
	Percent         int   `json:"percent"`
}

// NewDownloadProgress creates a new DownloadProgress event
func NewDownloadProgress(taskID string, p Progress) *DownloadProgress {
	return &DownloadProgress{
		BaseEvent:       domainevents.NewBaseEvent(taskID, AggregateType, EventDownloadProgress, 1),
		BytesDownloaded: p.Current,
		TotalBytes:      p.Total,
		Percent:         p.Percent,
	}
}

// DownloadPaused is emitted when a task is paused
type DownloadPaused struct {
	domainevents.BaseEvent
}

// NewDownloadPaused creates a new DownloadPaused event
func NewDownloadPaused(taskID string) *DownloadPaused {
	return &DownloadPaused{
		BaseEvent: domainevents.NewBaseEvent(taskID, AggregateType, EventDownloadPaused, 1),
	}
}

// DownloadCompleted is emitted when the final file is in place
type DownloadCompleted struct {
	domainevents.BaseEvent
	FilePath string `json:"file_path"`
}

// NewDownloadCompleted creates a new DownloadCompleted event
func NewDownloadCompleted(taskID, filePath string) *DownloadCompleted {
	return &DownloadCompleted{
		BaseEvent: domainevents.NewBaseEvent(taskID, AggregateType, EventDownloadCompleted, 1),
		FilePath:  filePath,
	}
}

// DownloadFailed is emitted when a run ends in failure or cancellation
type DownloadFailed struct {
	domainevents.BaseEvent
	Error    string `json:"error"`
	Canceled bool   `json:"canceled"`
}

// NewDownloadFailed creates a new DownloadFailed event
func NewDownloadFailed(taskID string, err error, canceled bool) *DownloadFailed {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &DownloadFailed{
		BaseEvent: domainevents.NewBaseEvent(taskID, AggregateType, EventDownloadFailed, 1),
		Error:     msg,
		Canceled:  canceled,
	}
}
