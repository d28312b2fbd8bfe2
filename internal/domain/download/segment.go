package download

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// DefaultTempSuffix is appended to the target path to name the segment directory
const DefaultTempSuffix = "-dld"

// Segment is one planned byte range of a resource
type Segment struct {
	Number      int
	TotalLength int64
	Offset      int64
	Length      int64
	Status      SegmentStatus
	ContentHash string
}

// End returns the inclusive last byte offset of the segment
func (s Segment) End() int64 {
	return s.Offset + s.Length - 1
}

// Split partitions totalLength into ordered, contiguous ranges of chunkSize bytes.
// The last range holds the remainder. A zero length yields no segments and a
// non-positive chunkSize yields a single segment covering everything.
func Split(totalLength, chunkSize int64) []Segment {
	if totalLength <= 0 {
		return []Segment{}
	}
	if chunkSize <= 0 || chunkSize > totalLength {
		chunkSize = totalLength
	}

	count := (totalLength + chunkSize - 1) / chunkSize
	segments := make([]Segment, 0, count)
	for i := int64(0); i < count; i++ {
		offset := i * chunkSize
		segments = append(segments, Segment{
			Number:      int(i),
			TotalLength: totalLength,
			Offset:      offset,
			Length:      min(chunkSize, totalLength-offset),
			Status:      SegmentRunning,
		})
	}
	return segments
}

// DownloadSegment is a planned segment bound to a task and its on-disk file
type DownloadSegment struct {
	Segment
	TaskID string
	URL    string
	Target string
	Path   string

	// LocalCounted is set once the bytes already on disk were reported as progress
	LocalCounted bool
}

// NewDownloadSegment binds seg to a task. The file lives in TempDir(target).
func NewDownloadSegment(taskID, url, target, tempSuffix string, seg Segment) *DownloadSegment {
	return &DownloadSegment{
		Segment: seg,
		TaskID:  taskID,
		URL:     url,
		Target:  target,
		Path:    SegmentPath(target, tempSuffix, seg.Number),
	}
}

// SameIdentity reports whether rec describes the same segment of the same task
func (s *DownloadSegment) SameIdentity(rec *DownloadSegment) bool {
	if rec == nil {
		return false
	}
	return s.TaskID == rec.TaskID && s.URL == rec.URL && s.Number == rec.Number
}

// SamePlan reports whether rec has the same identity and byte range as s
func (s *DownloadSegment) SamePlan(rec *DownloadSegment) bool {
	return s.SameIdentity(rec) && s.Offset == rec.Offset && s.Length == rec.Length
}

// RangeHeader returns the Range header value for resuming after local bytes
func (s *DownloadSegment) RangeHeader(local int64) string {
	return fmt.Sprintf("bytes=%d-%d", s.Offset+local, s.End())
}

// TempDir returns the directory holding segment files for target
func TempDir(target, suffix string) string {
	if suffix == "" {
		suffix = DefaultTempSuffix
	}
	return target + suffix
}

// SegmentPath returns the file path of segment number for target
func SegmentPath(target, suffix string, number int) string {
	return filepath.Join(TempDir(target, suffix), filepath.Base(target)+"-"+strconv.Itoa(number))
}
