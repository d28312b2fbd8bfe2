package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/narwhalmedia/segload/internal/domain/download"
)

func TestParseHeaders(t *testing.T) {
	headers, err := parseHeaders([]string{"Authorization: Bearer abc", "X-Empty:", " Cookie :a=b; c=d "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer abc",
		"X-Empty":       "",
		"Cookie":        "a=b; c=d",
	}, headers)

	_, err = parseHeaders([]string{"no separator"})
	assert.Error(t, err)

	_, err = parseHeaders([]string{": value"})
	assert.Error(t, err)
}

func TestRenderRecords(t *testing.T) {
	assert.Equal(t, "no downloads", renderRecords(nil))

	out := renderRecords([]*domain.TaskRecord{{
		TaskID:        "abc123",
		FileName:      "data.bin",
		Status:        domain.StatusPaused,
		Progress:      42,
		ContentLength: 3 << 20,
		UpdatedAt:     time.Now(),
	}})
	assert.Contains(t, out, "abc123")
	assert.Contains(t, out, "paused")
	assert.Contains(t, out, "42%")
	assert.Contains(t, out, "3.0 MiB")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "unknown", formatSize(-1))
	assert.Equal(t, "512 B", formatSize(512))
}
