package download

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/narwhalmedia/segload/pkg/errors"
)

func TestAtomicStatus_TransitionUnless(t *testing.T) {
	s := NewAtomicStatus(StatusRunning)

	prev, ok := s.TransitionUnless(StatusPaused, StatusComplete, StatusFailed)
	assert.True(t, ok)
	assert.Equal(t, StatusRunning, prev)
	assert.Equal(t, StatusPaused, s.Load())

	s.Store(StatusComplete)
	prev, ok = s.TransitionUnless(StatusPaused, StatusComplete, StatusFailed)
	assert.False(t, ok)
	assert.Equal(t, StatusComplete, prev)
	assert.Equal(t, StatusComplete, s.Load())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "running", StatusRunning.String())
	assert.Equal(t, "status(42)", Status(42).String())
	assert.True(t, StatusCanceled.IsTerminal())
	assert.False(t, StatusEnqueue.IsTerminal())
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("http://example.com/files/video.mp4",
		WithParallelism(0),
		WithParallelism(-3),
		WithPriority(5),
		WithHeaders(map[string]string{"X-Token": "abc"}),
	)
	require.NoError(t, err)

	assert.Equal(t, DefaultParallelism, req.Parallelism(), "non-positive parallelism is ignored")
	assert.Equal(t, 5, req.Priority())
	assert.Equal(t, "video.mp4", req.FileName())
	assert.Equal(t, "video.mp4", req.Target())
	assert.Equal(t, TaskIDForURL("http://example.com/files/video.mp4"), req.TaskID())
	assert.Len(t, req.TaskID(), 32)

	headers := req.Headers()
	headers["X-Token"] = "changed"
	assert.Equal(t, "abc", req.Headers()["X-Token"], "headers are copied out")
}

func TestNewRequest_ExplicitIDAndTarget(t *testing.T) {
	req, err := NewRequest("http://example.com/", WithRequestID("custom"), WithTarget("/data/out.bin"))
	require.NoError(t, err)
	assert.Equal(t, "custom", req.TaskID())
	assert.Equal(t, "out.bin", req.FileName())
	assert.Equal(t, "/data/out.bin", req.Target())
}

func TestNewRequest_Invalid(t *testing.T) {
	_, err := NewRequest("")
	assert.Error(t, err)
	_, err = NewRequest("not a url")
	assert.Error(t, err)
}

func TestNewRequest_RequestIDLength(t *testing.T) {
	_, err := NewRequest("http://example.com/a", WithRequestID(strings.Repeat("x", MaxTaskIDLength)))
	assert.NoError(t, err)

	_, err = NewRequest("http://example.com/a", WithRequestID(strings.Repeat("x", MaxTaskIDLength+1)))
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidRequest(err))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(10, 0))
	assert.Equal(t, 50, Percent(5, 10))
	assert.Equal(t, 100, Percent(20, 10))
	assert.Equal(t, 100, CompleteProgress(10).Percent)
}

type recordingCallback struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingCallback) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingCallback) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingCallback) OnStart() { r.add("start") }
func (r *recordingCallback) OnProgressChange(Progress) { r.add("progress") }
func (r *recordingCallback) OnPause() { r.add("pause") }
func (r *recordingCallback) OnComplete(string) { r.add("complete") }
func (r *recordingCallback) OnFailure(error) { r.add("failure") }

func TestListeners_OrderAndSingleTerminal(t *testing.T) {
	var l Listeners[string]
	a, b := &recordingCallback{}, &recordingCallback{}
	l.Add(a)
	l.Add(b)

	l.EmitStart()
	l.EmitProgress(Progress{Percent: 10})
	assert.True(t, l.EmitComplete("/tmp/file"))
	assert.False(t, l.EmitFailure(errors.New("late")))
	l.EmitProgress(Progress{Percent: 20})

	want := []string{"start", "progress", "complete"}
	assert.Equal(t, want, a.Events())
	assert.Equal(t, want, b.Events())
	assert.True(t, l.Finished())
}

func TestListeners_LateAttachReplays(t *testing.T) {
	var l Listeners[string]
	l.EmitStart()

	running := &recordingCallback{}
	l.Add(running)
	assert.Equal(t, []string{"start"}, running.Events())

	l.EmitPause()
	assert.Equal(t, []string{"start", "pause"}, running.Events())

	late := &recordingCallback{}
	l.Add(late)
	assert.Equal(t, []string{"pause"}, late.Events())
	assert.Equal(t, 1, l.Len())
}

func TestQueuedCallback_DeliversInOrder(t *testing.T) {
	target := &recordingCallback{}
	q := NewQueuedCallback[string](target)

	q.OnStart()
	for i := 0; i < 50; i++ {
		q.OnProgressChange(Progress{Percent: i})
	}
	q.OnFailure(errors.New("boom"))
	q.OnComplete("ignored after terminal")

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queued callback did not finish")
	}

	events := target.Events()
	require.Len(t, events, 52)
	assert.Equal(t, "start", events[0])
	assert.Equal(t, "failure", events[51])
}

func TestCallbackFuncs_NilFieldsAreSkipped(t *testing.T) {
	var completed string
	cb := CallbackFuncs[string]{Complete: func(s string) { completed = s }}
	cb.OnStart()
	cb.OnProgressChange(Progress{})
	cb.OnPause()
	cb.OnFailure(errors.New("x"))
	cb.OnComplete("done")
	assert.Equal(t, "done", completed)
}
