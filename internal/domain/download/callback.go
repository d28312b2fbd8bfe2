package download

import "sync"

// Callback receives lifecycle notifications for one task.
// Each callback sees start, progress, then exactly one of pause, complete or failure.
type Callback[T any] interface {
	OnStart()
	OnProgressChange(progress Progress)
	OnPause()
	OnComplete(result T)
	OnFailure(err error)
}

// CallbackFuncs adapts optional functions to a Callback. Nil fields are skipped.
type CallbackFuncs[T any] struct {
	Start    func()
	Progress func(Progress)
	Pause    func()
	Complete func(T)
	Failure  func(error)
}

func (c CallbackFuncs[T]) OnStart() {
	if c.Start != nil {
		c.Start()
	}
}

func (c CallbackFuncs[T]) OnProgressChange(p Progress) {
	if c.Progress != nil {
		c.Progress(p)
	}
}

func (c CallbackFuncs[T]) OnPause() {
	if c.Pause != nil {
		c.Pause()
	}
}

func (c CallbackFuncs[T]) OnComplete(result T) {
	if c.Complete != nil {
		c.Complete(result)
	}
}

func (c CallbackFuncs[T]) OnFailure(err error) {
	if c.Failure != nil {
		c.Failure(err)
	}
}

// Listeners fans notifications out to every attached callback in attach order.
// After the terminal event further notifications are dropped, and callbacks
// attached late get the terminal event replayed.
type Listeners[T any] struct {
	mu        sync.Mutex
	callbacks []Callback[T]
	started   bool
	terminal  func(Callback[T])
}

// Add attaches cb. It replays OnStart if the task already started, or the
// terminal event if the task already finished.
func (l *Listeners[T]) Add(cb Callback[T]) {
	if cb == nil {
		return
	}
	l.mu.Lock()
	terminal := l.terminal
	started := l.started
	if terminal == nil {
		l.callbacks = append(l.callbacks, cb)
	}
	l.mu.Unlock()

	if terminal != nil {
		terminal(cb)
		return
	}
	if started {
		cb.OnStart()
	}
}

// Len returns the number of attached callbacks
func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callbacks)
}

// Finished reports whether a terminal event was delivered
func (l *Listeners[T]) Finished() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terminal != nil
}

func (l *Listeners[T]) snapshot() []Callback[T] {
	out := make([]Callback[T], len(l.callbacks))
	copy(out, l.callbacks)
	return out
}

// EmitStart notifies OnStart once
func (l *Listeners[T]) EmitStart() {
	l.mu.Lock()
	if l.started || l.terminal != nil {
		l.mu.Unlock()
		return
	}
	l.started = true
	cbs := l.snapshot()
	l.mu.Unlock()

	for _, cb := range cbs {
		cb.OnStart()
	}
}

// EmitProgress notifies OnProgressChange unless the task already finished
func (l *Listeners[T]) EmitProgress(p Progress) {
	l.mu.Lock()
	if l.terminal != nil {
		l.mu.Unlock()
		return
	}
	cbs := l.snapshot()
	l.mu.Unlock()

	for _, cb := range cbs {
		cb.OnProgressChange(p)
	}
}

// EmitPause delivers the pause event. It returns false if a terminal event was already delivered.
func (l *Listeners[T]) EmitPause() bool {
	return l.finish(func(cb Callback[T]) { cb.OnPause() })
}

// EmitComplete delivers the completion event. It returns false if a terminal event was already delivered.
func (l *Listeners[T]) EmitComplete(result T) bool {
	return l.finish(func(cb Callback[T]) { cb.OnComplete(result) })
}

// EmitFailure delivers the failure event. It returns false if a terminal event was already delivered.
func (l *Listeners[T]) EmitFailure(err error) bool {
	return l.finish(func(cb Callback[T]) { cb.OnFailure(err) })
}

func (l *Listeners[T]) finish(deliver func(Callback[T])) bool {
	l.mu.Lock()
	if l.terminal != nil {
		l.mu.Unlock()
		return false
	}
	l.terminal = deliver
	cbs := l.snapshot()
	l.mu.Unlock()

	for _, cb := range cbs {
		deliver(cb)
	}
	return true
}

// QueuedCallback delivers notifications to the wrapped callback in order on its
// own goroutine, so slow consumers never block a transfer. The goroutine exits
// after the terminal event.
type QueuedCallback[T any] struct {
	target Callback[T]

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewQueuedCallback starts the delivery goroutine for target
func NewQueuedCallback[T any](target Callback[T]) *QueuedCallback[T] {
	q := &QueuedCallback[T]{
		target: target,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.loop()
	return q
}

// Done is closed once the terminal event has been delivered
func (q *QueuedCallback[T]) Done() <-chan struct{} {
	return q.done
}

func (q *QueuedCallback[T]) OnStart() {
	q.enqueue(q.target.OnStart, false)
}

func (q *QueuedCallback[T]) OnProgressChange(p Progress) {
	q.enqueue(func() { q.target.OnProgressChange(p) }, false)
}

func (q *QueuedCallback[T]) OnPause() {
	q.enqueue(q.target.OnPause, true)
}

func (q *QueuedCallback[T]) OnComplete(result T) {
	q.enqueue(func() { q.target.OnComplete(result) }, true)
}

func (q *QueuedCallback[T]) OnFailure(err error) {
	q.enqueue(func() { q.target.OnFailure(err) }, true)
}

func (q *QueuedCallback[T]) enqueue(fn func(), last bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.queue = append(q.queue, fn)
	if last {
		q.closed = true
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *QueuedCallback[T]) loop() {
	defer close(q.done)
	for range q.wake {
		q.mu.Lock()
		batch := q.queue
		q.queue = nil
		closed := q.closed
		q.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if closed {
			q.mu.Lock()
			empty := len(q.queue) == 0
			q.mu.Unlock()
			if empty {
				return
			}
		}
	}
}
