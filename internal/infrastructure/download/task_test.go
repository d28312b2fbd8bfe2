package download

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narwhalmedia/segload/internal/domain/download"
	"github.com/narwhalmedia/segload/pkg/errors"
	"github.com/narwhalmedia/segload/test/testutil"
)

func TestTask_SegmentedDownload(t *testing.T) {
	// two full segments and a short last one
	content := testutil.Content(2*testChunk + testChunk*2/5)
	h := newHarness(t, content)
	h.server.SetThrottle(32<<10, 20*time.Millisecond)
	rec := newRecorder()

	task := h.start(t, rec)
	rec.waitProgress(t)

	inFlight := h.record(t, task.ID())
	assert.Equal(t, download.StatusRunning, inFlight.Status)
	assert.Less(t, inFlight.Progress, 100)
	h.server.SetThrottle(0, 0)

	waitDone(t, task)

	require.NoError(t, task.Err())
	assert.Equal(t, download.StatusComplete, task.Status())

	got, err := os.ReadFile(h.target())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got), "merged file differs from the resource")

	assert.ElementsMatch(t, []string{
		"bytes=0-262143",
		"bytes=262144-524287",
		"bytes=524288-629144",
	}, h.server.Ranges())
	assert.NoDirExists(t, download.TempDir(h.target(), download.DefaultTempSuffix))

	assert.Equal(t, 1, rec.starts)
	assert.Equal(t, []string{h.target()}, rec.completed)
	requireTerminalOnce(t, rec)

	percents := rec.percents()
	require.NotEmpty(t, percents)
	assert.IsIncreasing(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])

	record := h.record(t, task.ID())
	assert.Equal(t, download.StatusComplete, record.Status)
	assert.Equal(t, 100, record.Progress)
	assert.Equal(t, int64(len(content)), record.ContentLength)

	segments, err := h.repo.ListSegments(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestTask_CompletedTargetShortCircuits(t *testing.T) {
	content := testutil.Content(2 * testChunk)
	h := newHarness(t, content)

	first := h.start(t, nil)
	waitDone(t, first)
	require.NoError(t, first.Err())
	ranges := h.server.RangeRequests()

	rec := newRecorder()
	second := h.start(t, rec)
	waitDone(t, second)

	require.NoError(t, second.Err())
	assert.Equal(t, ranges, h.server.RangeRequests(), "no bytes fetched again")
	assert.Equal(t, []string{h.target()}, rec.completed)
	assert.Equal(t, []int{100}, rec.percents())
}

func TestTask_CompletedRecordWithMissingFileRestarts(t *testing.T) {
	content := testutil.Content(2 * testChunk)
	h := newHarness(t, content)

	first := h.start(t, nil)
	waitDone(t, first)
	require.NoError(t, os.Remove(h.target()))

	second := h.start(t, nil)
	waitDone(t, second)

	require.NoError(t, second.Err())
	assert.Equal(t, int64(4), h.server.RangeRequests())
	assert.FileExists(t, h.target())
}

func TestTask_PauseAndResume(t *testing.T) {
	content := testutil.Content(2 * testChunk)
	h := newHarness(t, content)
	h.server.SetThrottle(16<<10, 20*time.Millisecond)

	rec := newRecorder()
	task := h.start(t, rec)
	rec.waitProgress(t)

	require.True(t, h.manager.Pause(task.ID()))
	waitDone(t, task)

	assert.NoError(t, task.Err())
	assert.Equal(t, download.StatusPaused, task.Status())
	assert.Equal(t, 1, rec.pauses)
	requireTerminalOnce(t, rec)
	assert.NoFileExists(t, h.target())

	paused := h.record(t, task.ID())
	assert.Equal(t, download.StatusPaused, paused.Status)
	floor := paused.Progress
	assert.Less(t, floor, 100)

	before := len(h.server.Ranges())
	h.server.SetThrottle(0, 0)

	resumed := newRecorder()
	again := h.start(t, resumed)
	waitDone(t, again)

	require.NoError(t, again.Err())
	got, err := os.ReadFile(h.target())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got), "resumed file differs from the resource")

	midSegment := false
	for _, start := range rangeStarts(t, h.server.Ranges()[before:]) {
		if start%testChunk != 0 {
			midSegment = true
		}
	}
	assert.True(t, midSegment, "resume continues inside a partially written segment")

	for _, p := range resumed.percents() {
		assert.Greater(t, p, floor, "progress never reports below the persisted percent")
	}
	assert.Equal(t, 100, h.record(t, again.ID()).Progress)
}

func TestTask_ChangedResourceRestarts(t *testing.T) {
	content := testutil.Content(2 * testChunk)
	h := newHarness(t, content)
	h.server.SetThrottle(16<<10, 20*time.Millisecond)

	rec := newRecorder()
	task := h.start(t, rec)
	rec.waitProgress(t)
	require.True(t, h.manager.Pause(task.ID()))
	waitDone(t, task)

	replaced := bytes.Repeat([]byte{0xA5}, len(content))
	h.server.SetContent(replaced, `"v2"`)
	h.server.SetThrottle(0, 0)
	before := len(h.server.Ranges())

	again := h.start(t, nil)
	waitDone(t, again)

	require.NoError(t, again.Err())
	got, err := os.ReadFile(h.target())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(replaced, got), "stale segment bytes leaked into the new file")

	assert.ElementsMatch(t, []int64{0, testChunk}, rangeStarts(t, h.server.Ranges()[before:]))
	assert.Equal(t, `"v2"`, h.record(t, again.ID()).ETag)
}

func TestTask_ResumeRefetchesShortCompletedSegment(t *testing.T) {
	content := testutil.Content(2 * testChunk)
	h := newHarness(t, content)
	ctx := context.Background()

	req, err := download.NewRequest(h.url(), download.WithTarget(h.target()))
	require.NoError(t, err)
	id := req.TaskID()

	info := &download.ResourceInfo{
		ContentType:   "application/octet-stream",
		ContentLength: int64(len(content)),
		AcceptRanges:  "bytes",
		ETag:          `"v1"`,
		LastModified:  "Mon, 02 Jan 2006 15:04:05 GMT",
	}
	require.NoError(t, h.repo.SaveTask(ctx, download.NewTaskRecord(id, req, info, download.StatusPaused)))

	plan := download.Split(int64(len(content)), testChunk)
	suffix := h.engine.Options.TempSuffix

	// segment 0 claims completion but holds garbage of the wrong length
	short := download.NewDownloadSegment(id, h.url(), h.target(), suffix, plan[0])
	short.Status = download.SegmentComplete
	require.NoError(t, h.repo.SaveSegment(ctx, short))
	require.NoError(t, os.MkdirAll(filepath.Dir(short.Path), 0o755))
	require.NoError(t, os.WriteFile(short.Path, bytes.Repeat([]byte{0xFF}, 1000), 0o644))

	// segment 1 was interrupted after a valid prefix
	partial := download.NewDownloadSegment(id, h.url(), h.target(), suffix, plan[1])
	partial.Status = download.SegmentFailed
	require.NoError(t, h.repo.SaveSegment(ctx, partial))
	require.NoError(t, os.WriteFile(partial.Path, content[testChunk:testChunk+1000], 0o644))

	task := h.start(t, nil)
	waitDone(t, task)

	require.NoError(t, task.Err())
	assert.ElementsMatch(t, []string{
		"bytes=0-262143",
		"bytes=263144-524287",
	}, h.server.Ranges())

	got, err := os.ReadFile(h.target())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
}

func TestTask_WholeFileWithoutRanges(t *testing.T) {
	content := testutil.Content(testChunk + 12345)
	h := newHarness(t, content)
	h.server.SetAcceptRanges(false)

	rec := newRecorder()
	task := h.start(t, rec)
	waitDone(t, task)

	require.NoError(t, task.Err())
	assert.Zero(t, h.server.RangeRequests())
	assert.Equal(t, int64(2), h.server.Requests())

	got, err := os.ReadFile(h.target())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
	assert.Equal(t, []string{h.target()}, rec.completed)
	assert.IsIncreasing(t, rec.percents())
}

func TestTask_WholeFilePauseRestartsFromScratch(t *testing.T) {
	content := testutil.Content(testChunk + 12345)
	h := newHarness(t, content)
	h.server.SetAcceptRanges(false)
	h.server.SetThrottle(16<<10, 20*time.Millisecond)

	rec := newRecorder()
	task := h.start(t, rec)
	rec.waitProgress(t)

	require.True(t, h.manager.Pause(task.ID()))
	waitDone(t, task)

	assert.NoError(t, task.Err())
	assert.Equal(t, download.StatusPaused, task.Status())
	assert.Equal(t, 1, rec.pauses)
	requireTerminalOnce(t, rec)
	assert.Equal(t, download.StatusPaused, h.record(t, task.ID()).Status)

	h.server.SetThrottle(0, 0)
	resumed := newRecorder()
	again := h.start(t, resumed)
	waitDone(t, again)

	require.NoError(t, again.Err())
	assert.Zero(t, h.server.RangeRequests())
	assert.Equal(t, []string{h.target()}, resumed.completed)

	got, err := os.ReadFile(h.target())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got), "restarted file differs from the resource")
	assert.Equal(t, download.StatusComplete, h.record(t, again.ID()).Status)
}

func TestTask_WholeFileWithUnknownLength(t *testing.T) {
	content := testutil.Content(3 * testChunk)
	h := newHarness(t, content)
	h.server.SetOmitLength(true)

	rec := newRecorder()
	task := h.start(t, rec)
	waitDone(t, task)

	require.NoError(t, task.Err())
	assert.Zero(t, h.server.RangeRequests())

	got, err := os.ReadFile(h.target())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))

	record := h.record(t, task.ID())
	assert.Equal(t, download.StatusComplete, record.Status)
	assert.Equal(t, 100, record.Progress)
	assert.Equal(t, []int{100}, rec.percents())
}

func TestTask_NoSplitUsesOneSegment(t *testing.T) {
	content := testutil.Content(3 * testChunk)
	h := newHarness(t, content)

	task, err := h.manager.Create(h.url()).
		SetTarget(h.target()).
		SetNoSplit(true).
		Start()
	require.NoError(t, err)
	waitDone(t, task)

	require.NoError(t, task.Err())
	assert.Equal(t, []string{"bytes=0-786431"}, h.server.Ranges())
}

func TestTask_DuplicateStartAttachesToActiveTask(t *testing.T) {
	content := testutil.Content(2 * testChunk)
	h := newHarness(t, content)
	h.server.SetThrottle(16<<10, 20*time.Millisecond)

	first, second := newRecorder(), newRecorder()
	task := h.start(t, first)
	dup := h.start(t, second)
	require.Same(t, task, dup)

	waitDone(t, task)
	require.NoError(t, task.Err())

	for _, rec := range []*recorder{first, second} {
		assert.Equal(t, 1, rec.starts)
		assert.Equal(t, []string{h.target()}, rec.completed)
		requireTerminalOnce(t, rec)
	}
	assert.Equal(t, int64(2), h.server.RangeRequests())
}

func TestTask_CancelWhileRunning(t *testing.T) {
	content := testutil.Content(2 * testChunk)
	h := newHarness(t, content)
	h.server.SetThrottle(16<<10, 20*time.Millisecond)

	rec := newRecorder()
	task := h.start(t, rec)
	rec.waitProgress(t)

	require.True(t, h.manager.Cancel(task.ID()))
	waitDone(t, task)

	assert.True(t, errors.IsCanceled(task.Err()))
	assert.Equal(t, download.StatusCanceled, task.Status())
	require.Len(t, rec.failures, 1)
	assert.True(t, errors.IsCanceled(rec.failures[0]))
	requireTerminalOnce(t, rec)

	assert.NoDirExists(t, download.TempDir(h.target(), download.DefaultTempSuffix))
	assert.NoFileExists(t, h.target())
	assert.Equal(t, download.StatusCanceled, h.record(t, task.ID()).Status)

	segments, err := h.repo.ListSegments(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Empty(t, segments)

	assert.False(t, h.manager.Cancel(task.ID()), "finished tasks are no longer active")
}

func TestTask_CancelWhileQueued(t *testing.T) {
	content := testutil.Content(2 * testChunk)
	h := newHarness(t, content, withMaxRunning(1))
	h.server.SetThrottle(16<<10, 20*time.Millisecond)

	running := h.start(t, nil)

	rec := newRecorder()
	queued, err := h.manager.Create(h.server.URL + "/files/other.bin").
		SetTarget(filepath.Join(h.dir, "other.bin")).
		SetCallback(rec).
		Start()
	require.NoError(t, err)
	assert.Equal(t, download.StatusEnqueue, queued.Status())

	require.True(t, h.manager.Cancel(queued.ID()))
	waitDone(t, queued)

	assert.True(t, errors.IsCanceled(queued.Err()))
	assert.Zero(t, rec.starts)
	require.Len(t, rec.failures, 1)
	assert.Nil(t, h.manager.Active(queued.ID()))

	_, err = h.manager.Status(context.Background(), queued.ID())
	assert.True(t, errors.IsNotFound(err), "a task canceled before running leaves no record")

	h.manager.Cancel(running.ID())
	waitDone(t, running)
}

func TestTask_RetriesFailedSegments(t *testing.T) {
	content := testutil.Content(2 * testChunk)
	h := newHarness(t, content)
	h.server.FailRanges(1)

	task := h.start(t, nil)
	waitDone(t, task)

	require.NoError(t, task.Err())
	assert.Equal(t, int64(3), h.server.RangeRequests())

	got, err := os.ReadFile(h.target())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
}

func TestTask_FailsAfterRetryRounds(t *testing.T) {
	opts := testOptions()
	opts.RetryRounds = 2
	h := newHarness(t, testutil.Content(2*testChunk), withOptions(opts))
	h.server.FailRanges(100)

	rec := newRecorder()
	task := h.start(t, rec)
	waitDone(t, task)

	assert.True(t, errors.IsSegmentTransfer(task.Err()))
	assert.Equal(t, download.StatusFailed, task.Status())
	assert.Equal(t, int64(4), h.server.RangeRequests())
	require.Len(t, rec.failures, 1)
	requireTerminalOnce(t, rec)
	assert.Equal(t, download.StatusFailed, h.record(t, task.ID()).Status)
	assert.NoFileExists(t, h.target())
}

func TestTask_RejectsMisplacedContentRange(t *testing.T) {
	opts := testOptions()
	opts.RetryRounds = 1
	h := newHarness(t, testutil.Content(2*testChunk), withOptions(opts))
	h.server.ShiftRanges(1)

	rec := newRecorder()
	task := h.start(t, rec)
	waitDone(t, task)

	require.Error(t, task.Err())
	assert.True(t, errors.IsSegmentTransfer(task.Err()))
	assert.Contains(t, task.Err().Error(), "content range")
	assert.Equal(t, int64(2), h.server.RangeRequests())
	requireTerminalOnce(t, rec)
	assert.NoFileExists(t, h.target())
}

func TestTask_CompletionAfterCancelReportsCancel(t *testing.T) {
	h := newHarness(t, testutil.Content(1024))
	rec := newRecorder()
	req, err := h.manager.Create(h.url()).
		SetTarget(h.target()).
		SetCallback(rec).
		Build()
	require.NoError(t, err)

	task := newTask(h.engine, req)
	task.status.Store(download.StatusRunning)

	// cancel lands after the merge, before the run reports completion
	task.Cancel()
	task.complete(1024)
	waitDone(t, task)

	assert.Equal(t, download.StatusCanceled, task.Status())
	assert.True(t, errors.IsCanceled(task.Err()))
	assert.Empty(t, rec.completed)
	require.Len(t, rec.failures, 1)
	assert.True(t, errors.IsCanceled(rec.failures[0]))
	requireTerminalOnce(t, rec)
}

func TestTask_ResourceInfoFailure(t *testing.T) {
	h := newHarness(t, testutil.Content(1024))
	h.server.Close()

	rec := newRecorder()
	task := h.start(t, rec)
	waitDone(t, task)

	assert.True(t, errors.IsResourceInfo(task.Err()))
	require.Len(t, rec.failures, 1)
	assert.Equal(t, 1, rec.starts)
}

func TestTask_ResourceInfoFailureKeepsCompletedFile(t *testing.T) {
	content := testutil.Content(2 * testChunk)
	h := newHarness(t, content)

	first := h.start(t, nil)
	waitDone(t, first)
	require.NoError(t, first.Err())

	h.server.Close()

	rec := newRecorder()
	task := h.start(t, rec)
	waitDone(t, task)

	require.NoError(t, task.Err())
	assert.Equal(t, []string{h.target()}, rec.completed)
	assert.Equal(t, download.StatusComplete, h.record(t, task.ID()).Status)
}

func TestTask_InsufficientSpace(t *testing.T) {
	h := newHarness(t, testutil.Content(2*testChunk), withSpace(fixedSpace(1024)))

	task := h.start(t, nil)
	waitDone(t, task)

	assert.True(t, errors.IsInsufficientSpace(task.Err()))
	assert.Zero(t, h.server.RangeRequests())
	assert.Equal(t, download.StatusFailed, h.record(t, task.ID()).Status)
}

func TestTask_PriorityOrdersAdmission(t *testing.T) {
	h := newHarness(t, testutil.Content(testChunk), withMaxRunning(1))
	h.server.SetThrottle(16<<10, 20*time.Millisecond)

	blocker := h.start(t, nil)

	var order []string
	var tasks []*Task
	for _, p := range []struct {
		name     string
		priority int
	}{{"low", 1}, {"high", 10}, {"mid", 5}} {
		name := p.name
		task, err := h.manager.Create(h.server.URL + "/files/" + name).
			SetTarget(filepath.Join(h.dir, name)).
			SetPriority(p.priority).
			Start()
		require.NoError(t, err)
		tasks = append(tasks, task)
	}

	for _, task := range h.engine.Scheduler.Ready() {
		order = append(order, task.(*Task).Request().FileName())
	}
	assert.Equal(t, []string{"high", "mid", "low"}, order)

	h.server.SetThrottle(0, 0)
	waitDone(t, blocker)
	for _, task := range tasks {
		waitDone(t, task)
		assert.NoError(t, task.Err())
	}
}

func TestManager_StatusListPurge(t *testing.T) {
	content := testutil.Content(testChunk)
	h := newHarness(t, content)
	ctx := context.Background()

	task := h.start(t, nil)
	waitDone(t, task)
	require.NoError(t, task.Err())

	other, err := h.manager.Create(h.server.URL + "/files/other.bin").
		SetTarget(filepath.Join(h.dir, "other.bin")).
		SetRequestID("other").
		Start()
	require.NoError(t, err)
	waitDone(t, other)
	assert.Equal(t, "other", other.ID())

	records, err := h.manager.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	record, err := h.manager.Status(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, h.url(), record.URL)

	require.NoError(t, h.manager.Purge(ctx, task.ID()))
	_, err = h.manager.Status(ctx, task.ID())
	assert.True(t, errors.IsNotFound(err))
	assert.FileExists(t, h.target(), "purge keeps the completed file")

	assert.True(t, errors.IsNotFound(h.manager.Purge(ctx, "missing")))
}

func TestManager_StartRejectsNilRequest(t *testing.T) {
	h := newHarness(t, nil)

	task, err := h.manager.Start(nil)
	assert.Nil(t, task)
	assert.True(t, errors.IsInvalidRequest(err))
}

func TestManager_ShutdownPausesRunningTasks(t *testing.T) {
	h := newHarness(t, testutil.Content(2*testChunk))
	h.server.SetThrottle(16<<10, 20*time.Millisecond)

	rec := newRecorder()
	task := h.start(t, rec)
	rec.waitProgress(t)

	h.manager.Shutdown()

	select {
	case <-task.Done():
	default:
		t.Fatal("shutdown returned before the task stopped")
	}
	assert.Equal(t, 1, rec.pauses)
	assert.Equal(t, download.StatusPaused, h.record(t, task.ID()).Status)
}
