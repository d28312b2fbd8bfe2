package nats_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/narwhalmedia/segload/internal/config"
	"github.com/narwhalmedia/segload/internal/domain/download"
	"github.com/narwhalmedia/segload/internal/infrastructure/events/nats"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "download.abc123.DownloadPaused", nats.Subject(download.NewDownloadPaused("abc123")))
	assert.Equal(t, "download.my_id_v2.DownloadPaused", nats.Subject(download.NewDownloadPaused("my.id v2")))
}

func TestPublisher_PublishEvent(t *testing.T) {
	url := os.Getenv("SEGLOAD_NATS_URL")
	if url == "" {
		url = "nats://localhost:4222"
	}
	cfg := config.NATSConfig{
		URL:           url,
		ClientID:      "segload-test-publisher",
		MaxReconnect:  1,
		ReconnectWait: time.Second,
		Stream:        "DOWNLOAD_EVENTS_TEST",
	}

	logger := zaptest.NewLogger(t)

	client, cleanup, err := nats.NewClient(cfg, logger)
	if err != nil {
		t.Skip("NATS not available:", err)
	}
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, client.Health(ctx))

	publisher := nats.NewPublisher(client, logger)
	err = publisher.PublishEvent(ctx, download.NewDownloadCompleted("abc123", "/tmp/file.bin"))
	require.NoError(t, err)
}
