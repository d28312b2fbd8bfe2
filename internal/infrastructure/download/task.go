package download

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/domain/download"
	"github.com/narwhalmedia/segload/internal/logger"
	"github.com/narwhalmedia/segload/pkg/errors"
)

// Task downloads one resource. It probes the server, decides between a fresh
// start, a resume and a completed-file short circuit, then transfers either in
// segments or as a single stream. Every run ends with exactly one of pause,
// completion or failure delivered to the attached callbacks.
type Task struct {
	engine    *Engine
	req       *download.Request
	id        string
	status    *download.AtomicStatus
	listeners download.Listeners[string]
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger

	mu       sync.Mutex
	segments []*segmentTask
	whole    *wholeFileTask

	progressMu  sync.Mutex
	lastPercent int

	doneOnce sync.Once
	done     chan struct{}
	err      error
}

func newTask(engine *Engine, req *download.Request) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	id := req.TaskID()
	t := &Task{
		engine:      engine,
		req:         req,
		id:          id,
		status:      download.NewAtomicStatus(download.StatusInit),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.WithTask(engine.Logger.Named("task"), id, req.URL()),
		lastPercent: -1,
		done:        make(chan struct{}),
	}
	t.listeners.Add(req.Callback())
	return t
}

// ID returns the task id
func (t *Task) ID() string {
	return t.id
}

// Priority returns the admission priority of the request
func (t *Task) Priority() int {
	return t.req.Priority()
}

// Status returns the current lifecycle status
func (t *Task) Status() download.Status {
	return t.status.Load()
}

// Request returns the request the task was created from
func (t *Task) Request() *download.Request {
	return t.req
}

// AddCallback attaches cb, replaying start or the terminal event if they already happened
func (t *Task) AddCallback(cb download.Callback[string]) {
	t.listeners.Add(cb)
}

// Done is closed once the terminal event of the run was delivered
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the failure that ended the run. It is nil after a pause or a
// completion and only meaningful once Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Run executes the task on a scheduler goroutine
func (t *Task) Run() {
	if !t.status.CompareAndSwap(download.StatusEnqueue, download.StatusRunning) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("task panicked",
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
			t.fail(errors.Internal(fmt.Sprintf("panic: %v", r)))
		}
	}()

	t.logger.Info("download started")
	t.listeners.EmitStart()

	if err := t.execute(); err != nil {
		t.fail(err)
	}
}

func (t *Task) execute() error {
	ctx := context.Background()
	repo := t.engine.Repository
	target := t.req.Target()

	record, err := repo.FindTask(ctx, t.id)
	if err != nil {
		return fmt.Errorf("failed to load task record: %w", err)
	}

	info, err := FetchResourceInfo(t.ctx, t.engine.Fetcher, t.req.URL(), t.req.Headers())
	if t.interrupted() {
		return nil
	}
	if err != nil {
		if record != nil && record.Status == download.StatusComplete && fileExists(target) {
			t.logger.Warn("resource info unavailable, keeping completed file", zap.Error(err))
			t.complete(localSize(target))
			return nil
		}
		return errors.ResourceInfo(t.req.URL(), err)
	}

	t.logger.Debug("resource info",
		zap.Int64("content_length", info.ContentLength),
		zap.String("accept_ranges", info.AcceptRanges),
		zap.String("etag", info.ETag),
		zap.String("last_modified", info.LastModified),
	)

	changed := record == nil ||
		record.Status == download.StatusCanceled ||
		record.ResourceChanged(info) ||
		(record.Status == download.StatusComplete && !fileExists(target))
	if !changed && record.Status == download.StatusComplete {
		if localSize(target) == info.ContentLength {
			t.logger.Info("target already complete")
			t.complete(info.ContentLength)
			return nil
		}
		// the local copy no longer matches what the server serves
		changed = true
	}

	floor := 0
	if changed {
		t.logger.Info("starting fresh", zap.Bool("had_record", record != nil))
		t.clearSegments()
		record = download.NewTaskRecord(t.id, t.req, info, download.StatusRunning)
		if err := repo.SaveTask(ctx, record); err != nil {
			return fmt.Errorf("failed to save task record: %w", err)
		}
		if err := t.checkSpace(info.ContentLength); err != nil {
			return err
		}
	} else {
		floor = record.Progress
		t.logger.Info("resuming", zap.Int("progress", floor))
		if err := repo.UpdateTaskStatus(ctx, t.id, download.StatusRunning); err != nil {
			return fmt.Errorf("failed to update task status: %w", err)
		}
	}

	if !info.SupportsRanges() || info.ContentLength <= 0 {
		return t.startWholeFile(info)
	}
	return t.runSegments(info, floor)
}

func (t *Task) runSegments(info *download.ResourceInfo, floor int) error {
	opts := t.engine.Options

	chunk := opts.ChunkSize
	if t.req.NoSplit() {
		chunk = info.ContentLength
	}
	plan := download.Split(info.ContentLength, chunk)
	segments := make([]*download.DownloadSegment, 0, len(plan))
	for _, seg := range plan {
		segments = append(segments,
			download.NewDownloadSegment(t.id, t.req.URL(), t.req.Target(), opts.TempSuffix, seg))
	}

	agg := newProgressAggregator(info.ContentLength, floor, t.publishProgress)
	parallel := t.req.Parallelism()

	var lastErr error
	for round := 0; round < opts.RetryRounds; round++ {
		pending := incomplete(segments)
		if len(pending) == 0 {
			break
		}
		if round > 0 {
			t.logger.Warn("retrying incomplete segments",
				zap.Int("round", round+1),
				zap.Int("segments", len(pending)),
				zap.Error(lastErr),
			)
			if !t.sleep(opts.RetryDelay) {
				break
			}
		}

		for start := 0; start < len(pending) && t.status.Load() == download.StatusRunning; start += parallel {
			end := min(start+parallel, len(pending))
			if err := t.runBatch(pending[start:end], agg); err != nil {
				lastErr = err
			}
		}
		if t.status.Load() != download.StatusRunning {
			break
		}
	}

	if t.interrupted() {
		return nil
	}
	if remaining := incomplete(segments); len(remaining) > 0 {
		return errors.SegmentTransfer(
			fmt.Sprintf("%d of %d segments incomplete after %d rounds", len(remaining), len(segments), opts.RetryRounds),
			lastErr)
	}
	return t.finalize(info, segments)
}

// runBatch transfers batch concurrently and waits for every member to return.
// It returns the last segment failure, if any.
func (t *Task) runBatch(batch []*download.DownloadSegment, agg *progressAggregator) error {
	var barrier sync.WaitGroup
	tasks := make([]*segmentTask, 0, len(batch))

	t.mu.Lock()
	if t.status.Load() != download.StatusRunning {
		t.mu.Unlock()
		return nil
	}
	for _, seg := range batch {
		tasks = append(tasks, newSegmentTask(t, seg, agg, &barrier))
	}
	barrier.Add(len(tasks))
	t.segments = tasks
	t.mu.Unlock()

	for _, st := range tasks {
		t.engine.Scheduler.Submit(st, true)
	}
	barrier.Wait()

	t.mu.Lock()
	t.segments = nil
	t.mu.Unlock()

	var lastErr error
	for _, st := range tasks {
		if st.err != nil {
			lastErr = st.err
		}
	}
	return lastErr
}

func (t *Task) finalize(info *download.ResourceInfo, segments []*download.DownloadSegment) error {
	validator := t.engine.Validator
	target := t.req.Target()

	if err := validator.ValidateSegments(segments); err != nil {
		return err
	}
	if err := validator.Merge(target, segments); err != nil {
		return errors.Wrap(errors.ErrorTypeMergeVerification, "merge failed", err)
	}
	if err := validator.ValidateLength(target, info.ContentLength); err != nil {
		return err
	}

	t.clearSegments()
	t.complete(info.ContentLength)
	return nil
}

func (t *Task) startWholeFile(info *download.ResourceInfo) error {
	t.logger.Info("downloading as a single stream",
		zap.String("accept_ranges", info.AcceptRanges),
		zap.Int64("content_length", info.ContentLength),
	)

	whole := newWholeFileTask(t, info)
	t.mu.Lock()
	if t.status.Load() != download.StatusRunning {
		t.mu.Unlock()
		t.interrupted()
		return nil
	}
	t.whole = whole
	t.mu.Unlock()

	t.engine.Scheduler.Submit(whole, true)
	return nil
}

// Pause stops the task, keeping everything needed to resume it
func (t *Task) Pause() {
	prev, ok := t.status.TransitionUnless(download.StatusPaused,
		download.StatusPaused, download.StatusCanceled, download.StatusComplete, download.StatusFailed)
	if !ok {
		return
	}
	t.logger.Info("pausing download", zap.Stringer("from", prev))
	t.persistStatus(download.StatusPaused)

	if prev != download.StatusRunning {
		t.listeners.EmitPause()
		t.finish(nil)
		return
	}

	t.mu.Lock()
	if t.whole != nil {
		t.whole.Pause()
	}
	for _, st := range t.segments {
		st.Pause()
	}
	t.mu.Unlock()

	t.cancel()
	t.engine.Scheduler.Finish(t)
}

// Cancel stops the task and discards its partial data
func (t *Task) Cancel() {
	prev, ok := t.status.TransitionUnless(download.StatusCanceled,
		download.StatusCanceled, download.StatusComplete, download.StatusFailed)
	if !ok {
		return
	}
	t.logger.Info("canceling download", zap.Stringer("from", prev))

	t.mu.Lock()
	whole := t.whole
	for _, st := range t.segments {
		st.Cancel()
	}
	t.mu.Unlock()
	if whole != nil {
		whole.Cancel()
	}

	t.cancel()
	t.clearSegments()
	t.persistStatus(download.StatusCanceled)

	if prev != download.StatusRunning {
		err := errors.Canceled()
		t.listeners.EmitFailure(err)
		t.finish(err)
		return
	}
	t.engine.Scheduler.Finish(t)
}

// interrupted reports a pause or cancel observed by the run. It returns false
// while the task is still running.
func (t *Task) interrupted() bool {
	switch t.status.Load() {
	case download.StatusPaused:
		t.persistStatus(download.StatusPaused)
		if t.listeners.EmitPause() {
			t.logger.Info("download paused")
		}
		t.finish(nil)
	case download.StatusCanceled:
		// segment goroutines may have recreated files after Cancel cleaned up
		t.clearSegments()
		err := errors.Canceled()
		if t.listeners.EmitFailure(err) {
			t.logger.Info("download canceled")
		}
		t.finish(err)
	case download.StatusComplete, download.StatusFailed:
	default:
		return false
	}
	return true
}

// reportInterruption forwards a pause or cancel seen by the whole-file transfer
func (t *Task) reportInterruption() {
	t.interrupted()
}

func (t *Task) complete(length int64) {
	if _, ok := t.status.TransitionUnless(download.StatusComplete,
		download.StatusCanceled, download.StatusFailed, download.StatusComplete); !ok {
		t.interrupted()
		return
	}
	t.publishProgress(download.CompleteProgress(length))
	t.persistStatus(download.StatusComplete)
	if err := t.engine.Repository.UpdateTaskProgress(context.Background(), t.id, 100); err != nil {
		t.logger.Error("failed to persist progress", zap.Error(err))
	}

	t.logger.Info("download complete",
		zap.String("target", t.req.Target()),
		zap.Int64("size", length),
	)
	t.listeners.EmitComplete(t.req.Target())
	t.finish(nil)
}

func (t *Task) fail(err error) {
	if _, ok := t.status.TransitionUnless(download.StatusFailed,
		download.StatusPaused, download.StatusCanceled, download.StatusComplete, download.StatusFailed); !ok {
		t.interrupted()
		return
	}

	t.logger.Error("download failed", zap.Error(err))
	t.persistStatus(download.StatusFailed)
	t.listeners.EmitFailure(err)
	t.finish(err)
}

func (t *Task) finish(err error) {
	t.engine.Scheduler.Finish(t)
	t.doneOnce.Do(func() {
		t.err = err
		t.cancel()
		close(t.done)
	})
}

func (t *Task) publishProgress(p download.Progress) {
	t.progressMu.Lock()
	defer t.progressMu.Unlock()

	if p.Percent <= t.lastPercent {
		return
	}
	t.lastPercent = p.Percent

	if err := t.engine.Repository.UpdateTaskProgress(context.Background(), t.id, p.Percent); err != nil {
		t.logger.Error("failed to persist progress", zap.Error(err))
	}
	t.listeners.EmitProgress(p)
}

func (t *Task) persistStatus(status download.Status) {
	if err := t.engine.Repository.UpdateTaskStatus(context.Background(), t.id, status); err != nil {
		t.logger.Error("failed to persist task status",
			zap.Stringer("status", status),
			zap.Error(err),
		)
	}
}

// clearSegments deletes segment records and the temporary directory
func (t *Task) clearSegments() {
	if err := t.engine.Repository.DeleteSegments(context.Background(), t.id); err != nil {
		t.logger.Error("failed to delete segment records", zap.Error(err))
	}
	dir := download.TempDir(t.req.Target(), t.engine.Options.TempSuffix)
	if err := os.RemoveAll(dir); err != nil {
		t.logger.Warn("failed to remove temporary directory", zap.String("dir", dir), zap.Error(err))
	}
}

func (t *Task) checkSpace(length int64) error {
	if length <= 0 || t.engine.Space == nil {
		return nil
	}
	free, ok := t.engine.Space.FreeSpace(t.req.Target())
	if ok && free < length {
		return errors.InsufficientSpace(length, free)
	}
	return nil
}

// sleep waits for d and reports false if the task was interrupted first
func (t *Task) sleep(d time.Duration) bool {
	if d <= 0 {
		return t.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func incomplete(segments []*download.DownloadSegment) []*download.DownloadSegment {
	var out []*download.DownloadSegment
	for _, seg := range segments {
		if seg.Status != download.SegmentComplete {
			out = append(out, seg)
		}
	}
	return out
}
