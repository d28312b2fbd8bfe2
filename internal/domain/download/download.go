package download

import (
	"fmt"
	"sync/atomic"
)

// Status represents the lifecycle status of a download task
type Status int32

const (
	StatusInit Status = iota
	StatusEnqueue
	StatusRunning
	StatusPaused
	StatusCanceled
	StatusComplete
	StatusFailed
)

var statusNames = map[Status]string{
	StatusInit:     "init",
	StatusEnqueue:  "enqueue",
	StatusRunning:  "running",
	StatusPaused:   "paused",
	StatusCanceled: "canceled",
	StatusComplete: "complete",
	StatusFailed:   "failed",
}

// String returns the lowercase status name
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// IsTerminal reports whether no further transitions happen within the current run
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaused, StatusCanceled, StatusComplete, StatusFailed:
		return true
	default:
		return false
	}
}

// AtomicStatus is a lock-free status holder shared between a task and its workers
type AtomicStatus struct {
	v atomic.Int32
}

// NewAtomicStatus creates a holder set to the given status
func NewAtomicStatus(s Status) *AtomicStatus {
	a := &AtomicStatus{}
	a.v.Store(int32(s))
	return a
}

// Load returns the current status
func (a *AtomicStatus) Load() Status {
	return Status(a.v.Load())
}

// Store sets the status unconditionally
func (a *AtomicStatus) Store(s Status) {
	a.v.Store(int32(s))
}

// CompareAndSwap transitions from old to new if the current status is old
func (a *AtomicStatus) CompareAndSwap(old, new Status) bool {
	return a.v.CompareAndSwap(int32(old), int32(new))
}

// TransitionUnless moves to next unless the current status is one of blocked.
// It returns the status observed before the transition and whether it happened.
func (a *AtomicStatus) TransitionUnless(next Status, blocked ...Status) (Status, bool) {
	for {
		cur := a.Load()
		for _, b := range blocked {
			if cur == b {
				return cur, false
			}
		}
		if a.CompareAndSwap(cur, next) {
			return cur, true
		}
	}
}

// SegmentStatus represents the persisted state of one segment
type SegmentStatus int

const (
	SegmentRunning SegmentStatus = iota
	SegmentComplete
	SegmentFailed
)

// String returns the lowercase segment status name
func (s SegmentStatus) String() string {
	switch s {
	case SegmentRunning:
		return "running"
	case SegmentComplete:
		return "complete"
	case SegmentFailed:
		return "failed"
	default:
		return fmt.Sprintf("segment_status(%d)", int(s))
	}
}
