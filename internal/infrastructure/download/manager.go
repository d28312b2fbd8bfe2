package download

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/narwhalmedia/segload/internal/domain/download"
	"github.com/narwhalmedia/segload/pkg/errors"
)

// ListenerFactory builds an extra callback attached to every new task,
// e.g. one that publishes lifecycle events
type ListenerFactory func(taskID string, req *download.Request) download.Callback[string]

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithListenerFactory attaches the callback built by f to every new task
func WithListenerFactory(f ListenerFactory) ManagerOption {
	return func(m *Manager) {
		if f != nil {
			m.listeners = append(m.listeners, f)
		}
	}
}

// Manager is the entry point for starting and controlling downloads
type Manager struct {
	engine    *Engine
	listeners []ListenerFactory

	// mu makes the duplicate lookup and the submission of a new task atomic
	mu     sync.Mutex
	logger *zap.Logger
}

// NewManager creates a download manager
func NewManager(engine *Engine, opts ...ManagerOption) *Manager {
	m := &Manager{
		engine: engine,
		logger: engine.Logger.Named("download-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts building a request for url
func (m *Manager) Create(url string) *RequestBuilder {
	return newRequestBuilder(m, url)
}

// Start submits req. If a task with the same id is already queued or running,
// the request's callback is attached to it instead and that task is returned.
func (m *Manager) Start(req *download.Request) (*Task, error) {
	if req == nil {
		return nil, errors.InvalidRequest("request is nil")
	}
	id := req.TaskID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.engine.Scheduler.FindByID(id).(*Task); ok {
		m.logger.Info("download already active, attaching callback",
			zap.String("task_id", id),
			zap.Stringer("status", existing.Status()),
		)
		existing.AddCallback(req.Callback())
		return existing, nil
	}

	task := newTask(m.engine, req)
	for _, f := range m.listeners {
		task.AddCallback(f(id, req))
	}
	task.status.Store(download.StatusEnqueue)
	m.engine.Scheduler.Submit(task, false)

	m.logger.Info("download submitted",
		zap.String("task_id", id),
		zap.String("url", req.URL()),
		zap.String("target", req.Target()),
		zap.Int("priority", req.Priority()),
	)
	return task, nil
}

// Pause pauses the active task with id and reports whether one was found
func (m *Manager) Pause(id string) bool {
	return m.engine.Scheduler.PauseByID(id)
}

// Cancel cancels the active task with id and reports whether one was found
func (m *Manager) Cancel(id string) bool {
	return m.engine.Scheduler.CancelByID(id)
}

// Active returns the queued or running task with id, or nil
func (m *Manager) Active(id string) *Task {
	task, _ := m.engine.Scheduler.FindByID(id).(*Task)
	return task
}

// Status returns the persisted record of id
func (m *Manager) Status(ctx context.Context, id string) (*download.TaskRecord, error) {
	record, err := m.engine.Repository.FindTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if record == nil {
		return nil, errors.NotFound(fmt.Sprintf("task %s not found", id))
	}
	return record, nil
}

// List returns every persisted task record
func (m *Manager) List(ctx context.Context) ([]*download.TaskRecord, error) {
	records, err := m.engine.Repository.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return records, nil
}

// Purge cancels id if active and deletes its records and temporary files.
// A completed target file is left in place.
func (m *Manager) Purge(ctx context.Context, id string) error {
	record, err := m.Status(ctx, id)
	if err != nil {
		return err
	}

	if task := m.Active(id); task != nil {
		task.Cancel()
		<-task.Done()
	}

	repo := m.engine.Repository
	if err := repo.DeleteSegments(ctx, id); err != nil {
		return fmt.Errorf("failed to delete segment records: %w", err)
	}
	if err := repo.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("failed to delete task record: %w", err)
	}

	dir := download.TempDir(record.Target, m.engine.Options.TempSuffix)
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("failed to remove temporary directory", zap.String("dir", dir), zap.Error(err))
	}

	m.logger.Info("task purged", zap.String("task_id", id))
	return nil
}

// Shutdown pauses every queued and running task and waits for their goroutines
func (m *Manager) Shutdown() {
	sched := m.engine.Scheduler
	for _, task := range sched.Ready() {
		task.Pause()
	}
	for _, task := range sched.Running() {
		task.Pause()
	}
	sched.Wait()
	m.logger.Info("download manager stopped")
}
