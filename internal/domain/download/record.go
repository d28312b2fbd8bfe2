package download

import "time"

// TaskRecord is the persisted state of a download task, keyed by task id
type TaskRecord struct {
	TaskID        string
	URL           string
	Target        string
	FileName      string
	ContentType   string
	ContentLength int64
	AcceptRanges  string
	ETag          string
	LastModified  string
	Status        Status
	Progress      int
	Headers       map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTaskRecord creates a fresh record mirroring the request and resource info
func NewTaskRecord(taskID string, req *Request, info *ResourceInfo, status Status) *TaskRecord {
	return &TaskRecord{
		TaskID:        taskID,
		URL:           req.URL(),
		Target:        req.Target(),
		FileName:      req.FileName(),
		ContentType:   info.ContentType,
		ContentLength: info.ContentLength,
		AcceptRanges:  info.AcceptRanges,
		ETag:          info.ETag,
		LastModified:  info.LastModified,
		Status:        status,
		Headers:       req.Headers(),
	}
}

// ResourceChanged reports whether info differs from what the record saw last
func (r *TaskRecord) ResourceChanged(info *ResourceInfo) bool {
	return r.ETag != info.ETag || r.LastModified != info.LastModified
}
