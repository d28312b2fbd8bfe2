package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/narwhalmedia/segload/internal/config"
)

func TestNew_WritesRotatedFile(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "debug"
	cfg.Log.File = filepath.Join(t.TempDir(), "segload.log")

	log, err := New(cfg.Service, cfg.Log)
	require.NoError(t, err)

	log.Info("segment complete", zap.Int("number", 3))
	_ = log.Sync()

	data, err := os.ReadFile(cfg.Log.File)
	require.NoError(t, err)
	line := string(data)
	assert.True(t, strings.Contains(line, `"msg":"segment complete"`), line)
	assert.Contains(t, line, `"number":3`)
	assert.Contains(t, line, `"service":"segload"`)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "verbose"
	_, err := New(cfg.Service, cfg.Log)
	assert.Error(t, err)
}

func TestWithTask(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	WithTask(base, "abc", "http://example.com/file").Info("queued")
	WithTask(base, "", "").Info("bare")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "abc", entries[0].ContextMap()["task_id"])
	assert.Equal(t, "http://example.com/file", entries[0].ContextMap()["url"])
	assert.Empty(t, entries[1].ContextMap())
}
