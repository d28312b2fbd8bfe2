package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/domain/download"
	"github.com/narwhalmedia/segload/pkg/errors"
)

// wholeFileTask streams the full response body straight into the target.
// It is used when the server does not support ranges or reports no length,
// and forwards its outcome to the parent task.
type wholeFileTask struct {
	parent *Task
	info   *download.ResourceInfo
	status *download.AtomicStatus
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func newWholeFileTask(parent *Task, info *download.ResourceInfo) *wholeFileTask {
	ctx, cancel := context.WithCancel(parent.ctx)
	return &wholeFileTask{
		parent: parent,
		info:   info,
		status: download.NewAtomicStatus(download.StatusEnqueue),
		ctx:    ctx,
		cancel: cancel,
		logger: parent.logger.Named("whole-file"),
	}
}

func (w *wholeFileTask) ID() string {
	return w.parent.ID() + "#whole"
}

func (w *wholeFileTask) Priority() int {
	return w.parent.Priority()
}

func (w *wholeFileTask) Run() {
	defer w.cancel()

	if !w.status.CompareAndSwap(download.StatusEnqueue, download.StatusRunning) {
		w.parent.reportInterruption()
		return
	}

	written, err := w.transfer()
	switch w.status.Load() {
	case download.StatusRunning:
		if err != nil {
			w.status.Store(download.StatusFailed)
			w.parent.fail(err)
			return
		}
		w.status.Store(download.StatusComplete)
		w.parent.complete(written)
	default:
		w.parent.reportInterruption()
	}
}

// Pause aborts the transfer. The partial target is truncated on the next run.
func (w *wholeFileTask) Pause() {
	if _, ok := w.status.TransitionUnless(download.StatusPaused,
		download.StatusComplete, download.StatusFailed, download.StatusPaused, download.StatusCanceled); ok {
		w.cancel()
	}
}

// Cancel aborts the transfer and deletes the target
func (w *wholeFileTask) Cancel() {
	if _, ok := w.status.TransitionUnless(download.StatusCanceled,
		download.StatusComplete, download.StatusFailed, download.StatusCanceled); ok {
		w.cancel()
		target := w.parent.req.Target()
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("failed to remove partial target", zap.String("target", target), zap.Error(err))
		}
	}
}

func (w *wholeFileTask) transfer() (int64, error) {
	target := w.parent.req.Target()
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create target directory: %w", err)
	}

	resp, err := w.parent.engine.Fetcher.Fetch(w.ctx, download.FetchRequest{
		URL:     w.parent.req.URL(),
		Headers: w.parent.req.Headers(),
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, errors.Transport(fmt.Sprintf("GET %s", w.parent.req.URL()),
			fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create target file: %w", err)
	}

	written, copyErr := w.stream(file, resp.Body)
	if err := file.Close(); err != nil && copyErr == nil {
		copyErr = fmt.Errorf("failed to close target file: %w", err)
	}
	if copyErr != nil {
		return written, copyErr
	}

	if total := w.info.ContentLength; total > 0 && written != total {
		return written, errors.Transport("short body",
			fmt.Errorf("received %d of %d bytes", written, total))
	}
	return written, nil
}

func (w *wholeFileTask) stream(file io.Writer, body io.Reader) (int64, error) {
	total := w.info.ContentLength
	buf := make([]byte, w.parent.engine.Options.BufferSize)

	var written, pending int64
	lastPercent := 0
	for w.status.Load() == download.StatusRunning {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("failed to write target file: %w", err)
			}
			written += int64(n)
			pending += int64(n)

			if p := download.Percent(written, total); p-lastPercent >= 1 {
				lastPercent = p
				w.parent.publishProgress(download.NewProgress(total, written, pending))
				pending = 0
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, errors.Transport("read body", rerr)
		}
	}
	return written, nil
}
