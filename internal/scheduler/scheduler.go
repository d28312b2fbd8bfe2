// Package scheduler runs tasks on goroutines with a bounded number of admitted
// tasks, ordered by priority.
package scheduler

import (
	"container/heap"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// DefaultMaxRunning is the number of admitted tasks that run at once
const DefaultMaxRunning = 3

// Task is a unit of work owned by the scheduler while queued or running
type Task interface {
	// ID identifies the task for lookups. It may be empty for anonymous sub-tasks.
	ID() string
	// Priority orders admission; higher runs first
	Priority() int
	// Run executes the task on a worker goroutine
	Run()
	// Pause asks the task to stop, keeping resumable state
	Pause()
	// Cancel asks the task to stop and discard its state
	Cancel()
}

// Scheduler admits queued tasks into a bounded running set and executes
// direct tasks immediately. The ready queue and running set are guarded by one mutex.
type Scheduler struct {
	mu         sync.Mutex
	ready      readyQueue
	running    []Task
	seq        uint64
	maxRunning int

	workers sync.WaitGroup
	logger  *zap.Logger
}

// New creates a scheduler admitting at most maxRunning queued tasks at once
func New(maxRunning int, logger *zap.Logger) *Scheduler {
	if maxRunning <= 0 {
		maxRunning = DefaultMaxRunning
	}
	return &Scheduler{
		maxRunning: maxRunning,
		logger:     logger.Named("scheduler"),
	}
}

// SetMaxRunning changes the admission limit and promotes waiting tasks if it grew
func (s *Scheduler) SetMaxRunning(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.maxRunning = n
	s.mu.Unlock()
	s.Promote()
}

// Submit schedules task. A direct task starts on its own goroutine immediately
// and never occupies a running slot; it is meant for sub-tasks whose parent
// already bounds their concurrency. Other tasks wait in the ready queue.
func (s *Scheduler) Submit(task Task, direct bool) {
	if direct {
		s.dispatch(task)
		return
	}

	s.mu.Lock()
	s.seq++
	heap.Push(&s.ready, &queueItem{task: task, seq: s.seq})
	s.logger.Debug("task queued",
		zap.String("task_id", task.ID()),
		zap.Int("priority", task.Priority()),
		zap.Int("ready", s.ready.Len()),
	)
	s.promoteLocked()
	s.mu.Unlock()
}

// Promote moves the highest-priority ready tasks into the running set while capacity remains
func (s *Scheduler) Promote() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoteLocked()
}

func (s *Scheduler) promoteLocked() {
	for len(s.running) < s.maxRunning && s.ready.Len() > 0 {
		item := heap.Pop(&s.ready).(*queueItem)
		s.running = append(s.running, item.task)
		s.logger.Debug("task promoted",
			zap.String("task_id", item.task.ID()),
			zap.Int("running", len(s.running)),
		)
		s.dispatch(item.task)
	}
}

// FindByID returns the first ready or running task with the given id, or nil
func (s *Scheduler) FindByID(id string) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.ready {
		if item.task.ID() == id {
			return item.task
		}
	}
	for _, task := range s.running {
		if task.ID() == id {
			return task
		}
	}
	return nil
}

// Finish removes task from the ready queue and running set, then backfills freed slots
func (s *Scheduler) Finish(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ready.remove(task)
	for i, t := range s.running {
		if t == task {
			s.running = append(s.running[:i], s.running[i+1:]...)
			break
		}
	}
	s.promoteLocked()
}

// PauseByID pauses the task with the given id and reports whether one was found
func (s *Scheduler) PauseByID(id string) bool {
	task := s.FindByID(id)
	if task == nil {
		return false
	}
	task.Pause()
	return true
}

// CancelByID cancels the task with the given id and reports whether one was found
func (s *Scheduler) CancelByID(id string) bool {
	task := s.FindByID(id)
	if task == nil {
		return false
	}
	task.Cancel()
	return true
}

// ReadyCount returns the number of queued tasks
func (s *Scheduler) ReadyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.Len()
}

// RunningCount returns the number of admitted tasks
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Running returns a snapshot of the admitted tasks
func (s *Scheduler) Running() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.running))
	copy(out, s.running)
	return out
}

// Ready returns a snapshot of the queued tasks in admission order
func (s *Scheduler) Ready() []Task {
	s.mu.Lock()
	items := make(readyQueue, len(s.ready))
	copy(items, s.ready)
	s.mu.Unlock()

	out := make([]Task, 0, len(items))
	for items.Len() > 0 {
		out = append(out, heap.Pop(&items).(*queueItem).task)
	}
	return out
}

// Wait blocks until every dispatched goroutine has returned
func (s *Scheduler) Wait() {
	s.workers.Wait()
}

func (s *Scheduler) dispatch(task Task) {
	s.workers.Add(1)
	go s.execute(task)
}

func (s *Scheduler) execute(task Task) {
	defer s.workers.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				zap.String("task_id", task.ID()),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
			s.Finish(task)
		}
	}()
	task.Run()
}
