package download

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertContiguous(t *testing.T, segments []Segment, total int64) {
	t.Helper()
	var sum, next int64
	for i, seg := range segments {
		assert.Equal(t, i, seg.Number)
		assert.Equal(t, next, seg.Offset, "segment %d must start where the previous ended", i)
		assert.Positive(t, seg.Length)
		assert.Equal(t, total, seg.TotalLength)
		assert.Equal(t, SegmentRunning, seg.Status)
		next = seg.Offset + seg.Length
		sum += seg.Length
	}
	assert.Equal(t, total, sum)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name      string
		total     int64
		chunk     int64
		wantCount int
		wantLast  int64
	}{
		{"zero length yields no segments", 0, 10, 0, 0},
		{"smaller than chunk", 7, 10, 1, 7},
		{"exact multiple", 30, 10, 3, 10},
		{"remainder", 31, 10, 4, 1},
		{"single byte chunks", 5, 1, 5, 1},
		{"no split uses total as chunk", 12, 12, 1, 12},
		{"non-positive chunk covers everything", 12, 0, 1, 12},
		{"12 MiB at 5 MiB", 12 * 1024 * 1024, DefaultChunkSize, 3, 2 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments := Split(tt.total, tt.chunk)
			require.Len(t, segments, tt.wantCount)
			assertContiguous(t, segments, tt.total)
			if tt.wantCount > 0 {
				assert.Equal(t, tt.wantLast, segments[len(segments)-1].Length)
			}
		})
	}
}

func TestSplit_ContiguousForManyInputs(t *testing.T) {
	for total := int64(0); total <= 200; total += 7 {
		for chunk := int64(1); chunk <= 40; chunk += 3 {
			assertContiguous(t, Split(total, chunk), total)
		}
	}
}

func TestSplit_ZeroLengthIsEmptyNotNil(t *testing.T) {
	segments := Split(0, DefaultChunkSize)
	assert.NotNil(t, segments)
	assert.Empty(t, segments)
}

func TestDownloadSegment_Identity(t *testing.T) {
	seg := NewDownloadSegment("task", "http://example.com/a.bin", "/tmp/a.bin", "", Segment{Number: 1, Offset: 10, Length: 10})

	same := *seg
	assert.True(t, seg.SameIdentity(&same))
	assert.True(t, seg.SamePlan(&same))

	moved := *seg
	moved.Offset = 20
	assert.True(t, seg.SameIdentity(&moved))
	assert.False(t, seg.SamePlan(&moved))

	other := *seg
	other.URL = "http://example.com/b.bin"
	assert.False(t, seg.SameIdentity(&other))
	assert.False(t, seg.SameIdentity(nil))
}

func TestDownloadSegment_RangeHeader(t *testing.T) {
	seg := NewDownloadSegment("task", "u", "/tmp/a.bin", "", Segment{Number: 2, Offset: 100, Length: 50})
	assert.Equal(t, "bytes=100-149", seg.RangeHeader(0))
	assert.Equal(t, "bytes=120-149", seg.RangeHeader(20))
}

func TestSegmentPath(t *testing.T) {
	target := filepath.Join("data", "movie.mkv")
	assert.Equal(t, filepath.Join("data", "movie.mkv-dld"), TempDir(target, ""))
	assert.Equal(t, filepath.Join("data", "movie.mkv-dld", "movie.mkv-3"), SegmentPath(target, DefaultTempSuffix, 3))
	assert.Equal(t, filepath.Join("data", "movie.mkv.parts", "movie.mkv-0"), SegmentPath(target, ".parts", 0))
}
