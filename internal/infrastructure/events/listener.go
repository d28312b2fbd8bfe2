// Package events turns task lifecycle notifications into published domain events.
package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/domain/download"
	domainevents "github.com/narwhalmedia/segload/internal/domain/events"
	"github.com/narwhalmedia/segload/pkg/errors"
)

const publishTimeout = 10 * time.Second

// Listener is a download callback that publishes one domain event per notification
type Listener struct {
	taskID    string
	req       *download.Request
	publisher domainevents.EventPublisher
	logger    *zap.Logger
}

// NewListener creates a listener publishing events of one task
func NewListener(taskID string, req *download.Request, publisher domainevents.EventPublisher, logger *zap.Logger) *Listener {
	return &Listener{
		taskID:    taskID,
		req:       req,
		publisher: publisher,
		logger:    logger.Named("event-listener"),
	}
}

// NewListenerFactory returns a factory building queued listeners, so a slow
// broker never stalls a transfer
func NewListenerFactory(publisher domainevents.EventPublisher, logger *zap.Logger) func(string, *download.Request) download.Callback[string] {
	return func(taskID string, req *download.Request) download.Callback[string] {
		return download.NewQueuedCallback[string](NewListener(taskID, req, publisher, logger))
	}
}

func (l *Listener) OnStart() {
	l.publish(download.NewDownloadStarted(l.taskID, l.req))
}

func (l *Listener) OnProgressChange(p download.Progress) {
	l.publish(download.NewDownloadProgress(l.taskID, p))
}

func (l *Listener) OnPause() {
	l.publish(download.NewDownloadPaused(l.taskID))
}

func (l *Listener) OnComplete(path string) {
	l.publish(download.NewDownloadCompleted(l.taskID, path))
}

func (l *Listener) OnFailure(err error) {
	l.publish(download.NewDownloadFailed(l.taskID, err, errors.IsCanceled(err)))
}

func (l *Listener) publish(event domainevents.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := l.publisher.PublishEvent(ctx, event); err != nil {
		l.logger.Error("failed to publish event",
			zap.String("task_id", l.taskID),
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
}
