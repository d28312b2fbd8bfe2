package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/domain/download"
	"github.com/narwhalmedia/segload/pkg/errors"
)

// segmentTask transfers one byte range into its segment file. It runs as a
// direct scheduler task and signals the parent's batch barrier when done.
type segmentTask struct {
	parent  *Task
	seg     *download.DownloadSegment
	agg     *progressAggregator
	barrier *sync.WaitGroup
	status  *download.AtomicStatus
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger

	// err is the failure of the last run, read by the parent after the barrier
	err error
}

func newSegmentTask(parent *Task, seg *download.DownloadSegment, agg *progressAggregator, barrier *sync.WaitGroup) *segmentTask {
	ctx, cancel := context.WithCancel(parent.ctx)
	return &segmentTask{
		parent:  parent,
		seg:     seg,
		agg:     agg,
		barrier: barrier,
		status:  download.NewAtomicStatus(download.StatusEnqueue),
		ctx:     ctx,
		cancel:  cancel,
		logger:  parent.logger.With(zap.Int("segment", seg.Number)),
	}
}

func (s *segmentTask) ID() string {
	return fmt.Sprintf("%s#%d", s.seg.TaskID, s.seg.Number)
}

func (s *segmentTask) Priority() int {
	return s.parent.Priority()
}

func (s *segmentTask) Run() {
	defer s.barrier.Done()
	defer s.cancel()

	if !s.status.CompareAndSwap(download.StatusEnqueue, download.StatusRunning) {
		s.interrupted()
		return
	}

	if err := s.transfer(); err != nil {
		s.fail(err)
	}
}

// Pause stops the transfer, keeping the partial file for a later run
func (s *segmentTask) Pause() {
	if _, ok := s.status.TransitionUnless(download.StatusPaused,
		download.StatusComplete, download.StatusFailed, download.StatusPaused, download.StatusCanceled); ok {
		s.cancel()
	}
}

// Cancel stops the transfer; the parent discards the segment files
func (s *segmentTask) Cancel() {
	if _, ok := s.status.TransitionUnless(download.StatusCanceled,
		download.StatusComplete, download.StatusFailed, download.StatusCanceled); ok {
		s.cancel()
	}
}

func (s *segmentTask) transfer() error {
	engine := s.parent.engine
	repo := engine.Repository
	seg := s.seg

	local := localSize(seg.Path)
	rec, err := repo.FindSegment(context.Background(), seg.TaskID, seg.Number)
	if err != nil {
		return fmt.Errorf("failed to load segment record: %w", err)
	}

	switch {
	case rec != nil && seg.SamePlan(rec):
		if rec.Status == download.SegmentComplete {
			if local == seg.Length {
				s.reportLocal(local)
				s.complete()
				return nil
			}
			// a completed record with a short file is never trusted
			local = s.discard()
		} else if local > seg.Length {
			local = s.discard()
		}
	case fileExists(seg.Path):
		local = s.discard()
	}

	if err := os.MkdirAll(filepath.Dir(seg.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create segment directory: %w", err)
	}

	seg.Status = download.SegmentRunning
	if err := repo.SaveSegment(context.Background(), seg); err != nil {
		return fmt.Errorf("failed to save segment record: %w", err)
	}

	if local == seg.Length {
		s.reportLocal(local)
		s.complete()
		return nil
	}

	resp, err := engine.Fetcher.Fetch(s.ctx, download.FetchRequest{
		URL:     seg.URL,
		Headers: s.parent.req.Headers(),
		Range:   seg.RangeHeader(local),
	})
	if err != nil {
		if s.status.Load() != download.StatusRunning {
			s.interrupted()
			return nil
		}
		return errors.SegmentTransfer(fmt.Sprintf("segment %d request failed", seg.Number), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return errors.SegmentTransfer(
			fmt.Sprintf("segment %d: expected status 206, got %d", seg.Number, resp.StatusCode), nil)
	}
	contentRange := resp.Header.Get("Content-Range")
	if start, _, _, ok := parseContentRange(contentRange); !ok || start != seg.Offset+local {
		return errors.SegmentTransfer(
			fmt.Sprintf("segment %d: requested offset %d, got content range %q", seg.Number, seg.Offset+local, contentRange), nil)
	}

	file, err := os.OpenFile(seg.Path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open segment file: %w", err)
	}
	if _, err := file.Seek(local, io.SeekStart); err != nil {
		file.Close()
		return fmt.Errorf("failed to seek segment file: %w", err)
	}

	written, copyErr := s.stream(file, resp.Body, local)
	if err := file.Close(); err != nil && copyErr == nil {
		copyErr = fmt.Errorf("failed to close segment file: %w", err)
	}

	if s.status.Load() != download.StatusRunning {
		s.interrupted()
		return nil
	}
	if copyErr != nil {
		return copyErr
	}
	if written != seg.Length {
		return errors.SegmentTransfer(
			fmt.Sprintf("segment %d ended at %d of %d bytes", seg.Number, written, seg.Length), nil)
	}

	s.complete()
	return nil
}

// stream copies body into file until the segment is full, the body ends or
// the status leaves RUNNING. It returns the segment's byte count on disk.
func (s *segmentTask) stream(file io.Writer, body io.Reader, local int64) (int64, error) {
	seg := s.seg
	buf := make([]byte, s.parent.engine.Options.BufferSize)

	written := local
	var pending int64
	if !seg.LocalCounted {
		pending = local
	}
	lastPercent := download.Percent(local, seg.Length)

	defer func() {
		if pending > 0 {
			s.emit(pending)
		}
	}()

	for s.status.Load() == download.StatusRunning && written < seg.Length {
		n, rerr := body.Read(buf)
		if n > 0 {
			if remaining := seg.Length - written; int64(n) > remaining {
				n = int(remaining)
			}
			if _, err := file.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("failed to write segment file: %w", err)
			}
			written += int64(n)
			pending += int64(n)

			if p := download.Percent(written, seg.Length); p-lastPercent >= 1 {
				lastPercent = p
				s.emit(pending)
				pending = 0
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, errors.Transport(fmt.Sprintf("segment %d read failed", seg.Number), rerr)
		}
	}
	return written, nil
}

func (s *segmentTask) emit(update int64) {
	s.seg.LocalCounted = true
	s.agg.add(update)
}

// reportLocal counts bytes found on disk once per task run
func (s *segmentTask) reportLocal(local int64) {
	if !s.seg.LocalCounted && local > 0 {
		s.emit(local)
	}
}

func (s *segmentTask) discard() int64 {
	if err := os.Remove(s.seg.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove stale segment file", zap.Error(err))
	}
	return 0
}

func (s *segmentTask) complete() {
	s.status.Store(download.StatusComplete)
	s.seg.Status = download.SegmentComplete
	s.persist(download.SegmentComplete)
	s.logger.Debug("segment complete", zap.Int64("length", s.seg.Length))
}

func (s *segmentTask) fail(err error) {
	s.status.Store(download.StatusFailed)
	s.seg.Status = download.SegmentFailed
	s.err = err
	s.persist(download.SegmentFailed)
	s.logger.Warn("segment failed", zap.Error(err))
}

// interrupted records a pause or cancel observed by the transfer loop
func (s *segmentTask) interrupted() {
	s.seg.Status = download.SegmentFailed
	s.persist(download.SegmentFailed)
	if s.status.Load() == download.StatusCanceled {
		s.err = errors.Canceled()
		return
	}
	s.logger.Debug("segment paused")
}

func (s *segmentTask) persist(status download.SegmentStatus) {
	if err := s.parent.engine.Repository.UpdateSegmentStatus(context.Background(), s.seg.TaskID, s.seg.Number, status); err != nil {
		s.logger.Error("failed to persist segment status", zap.Error(err))
	}
}
