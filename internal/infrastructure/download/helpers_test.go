package download

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/config"
	"github.com/narwhalmedia/segload/internal/domain/download"
	persistence "github.com/narwhalmedia/segload/internal/infrastructure/persistence/gorm"
	"github.com/narwhalmedia/segload/internal/scheduler"
	"github.com/narwhalmedia/segload/test/testutil"
)

const (
	testTimeout = 15 * time.Second
	testChunk   = 256 << 10
)

func testOptions() Options {
	return Options{
		ChunkSize:   testChunk,
		Parallelism: 2,
		RetryRounds: 3,
		RetryDelay:  10 * time.Millisecond,
	}
}

type harness struct {
	server  *testutil.RangeServer
	repo    *persistence.DownloadRepository
	engine  *Engine
	manager *Manager
	dir     string
}

type harnessOption func(*harnessSetup)

type harnessSetup struct {
	opts       Options
	maxRunning int
	space      download.SpaceChecker
}

func withOptions(opts Options) harnessOption {
	return func(s *harnessSetup) { s.opts = opts }
}

func withMaxRunning(n int) harnessOption {
	return func(s *harnessSetup) { s.maxRunning = n }
}

func withSpace(space download.SpaceChecker) harnessOption {
	return func(s *harnessSetup) { s.space = space }
}

// newHarness wires a manager against a range server and a sqlite record store.
// Loggers are no-ops because task goroutines may outlive a failing test.
func newHarness(t *testing.T, content []byte, options ...harnessOption) *harness {
	t.Helper()
	dir := t.TempDir()

	setup := harnessSetup{
		opts:       testOptions(),
		maxRunning: scheduler.DefaultMaxRunning,
		space:      StatfsChecker{},
	}
	for _, o := range options {
		o(&setup)
	}

	server := testutil.NewRangeServer(t, content)
	repo := persistence.NewDownloadRepository(persistence.NewTestDB(t))
	logger := zap.NewNop()

	fetcher := NewHTTPFetcher(config.Default().HTTP, 0, logger)
	t.Cleanup(func() { fetcher.Close() })

	engine := NewEngine(fetcher, repo, scheduler.New(setup.maxRunning, logger), setup.space, setup.opts, logger)
	manager := NewManager(engine)
	t.Cleanup(manager.Shutdown)

	return &harness{
		server:  server,
		repo:    repo,
		engine:  engine,
		manager: manager,
		dir:     dir,
	}
}

func (h *harness) url() string {
	return h.server.URL + "/files/data.bin"
}

func (h *harness) target() string {
	return filepath.Join(h.dir, "data.bin")
}

// start submits the default url into the default target
func (h *harness) start(t *testing.T, cb download.Callback[string]) *Task {
	t.Helper()
	task, err := h.manager.Create(h.url()).
		SetTarget(h.target()).
		SetCallback(cb).
		Start()
	require.NoError(t, err)
	return task
}

func (h *harness) record(t *testing.T, id string) *download.TaskRecord {
	t.Helper()
	record, err := h.repo.FindTask(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record
}

// recorder is a callback capturing every notification
type recorder struct {
	mu        sync.Mutex
	starts    int
	progress  []download.Progress
	pauses    int
	completed []string
	failures  []error

	firstProgress chan struct{}
	once          sync.Once
}

func newRecorder() *recorder {
	return &recorder{firstProgress: make(chan struct{})}
}

func (r *recorder) OnStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
}

func (r *recorder) OnProgressChange(p download.Progress) {
	r.mu.Lock()
	r.progress = append(r.progress, p)
	r.mu.Unlock()
	r.once.Do(func() { close(r.firstProgress) })
}

func (r *recorder) OnPause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses++
}

func (r *recorder) OnComplete(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, path)
}

func (r *recorder) OnFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *recorder) terminals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauses + len(r.completed) + len(r.failures)
}

func (r *recorder) percents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.progress))
	for _, p := range r.progress {
		out = append(out, p.Percent)
	}
	return out
}

func (r *recorder) waitProgress(t *testing.T) {
	t.Helper()
	select {
	case <-r.firstProgress:
	case <-time.After(testTimeout):
		t.Fatal("no progress reported")
	}
}

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(testTimeout):
		t.Fatalf("task %s did not finish, status %s", task.ID(), task.Status())
	}
}

type fixedSpace int64

func (f fixedSpace) FreeSpace(string) (int64, bool) {
	return int64(f), true
}

func requireTerminalOnce(t *testing.T, r *recorder) {
	t.Helper()
	require.Equal(t, 1, r.terminals(), "exactly one terminal notification")
}

// rangeStarts returns the first byte offset of every Range header
func rangeStarts(t *testing.T, ranges []string) []int64 {
	t.Helper()
	starts := make([]int64, 0, len(ranges))
	for _, r := range ranges {
		first, _, ok := strings.Cut(strings.TrimPrefix(r, "bytes="), "-")
		require.True(t, ok, r)
		n, err := strconv.ParseInt(first, 10, 64)
		require.NoError(t, err)
		starts = append(starts, n)
	}
	return starts
}
