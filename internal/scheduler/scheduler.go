// Package scheduler implements a minimal cooperative periodic-task runner
// for a single goroutine: Create, AddTask, Start, Stop, Destroy. Tasks run
// one at a time, in time order, tie-broken by insertion sequence.
package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle of a Scheduler.
type State int32

const (
	Idle State = iota
	Running
	StopRequested
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case StopRequested:
		return "stop_requested"
	default:
		return "unknown"
	}
}

// Action runs a task and reports how it should be rescheduled:
//
//	>0  reschedule at now + returned duration (task overrides its own cadence)
//	 0  reschedule at now + interval if interval > 0, else remove
//	<0  remove immediately, the task declares itself exhausted
type Action func(arg any) time.Duration

// Sentinel return values for the zero/negative cases.
const (
	// Repeat reschedules at now+interval (or removes if interval == 0).
	Repeat time.Duration = 0
	// Done removes the task immediately.
	Done time.Duration = -1
)

// Cleanup releases resources owned by a task's arg. Invoked exactly once
// per CleanupArg, either when the task is removed or on Destroy.
type Cleanup func(arg any)

// Handle is an opaque reference to a queued task.
type Handle struct {
	id uint64
}

type taskEntry struct {
	id         uint64
	seq        uint64
	nextRun    time.Time
	action     Action
	actionArg  any
	cleanup    Cleanup
	cleanupArg any
	interval   time.Duration
	index      int // heap index, maintained by container/heap
}

// taskHeap is a min-heap ordered by (nextRun, seq) ascending.
type taskHeap []*taskEntry

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].nextRun.Equal(h[j].nextRun) {
		return h[i].seq < h[j].seq
	}
	return h[i].nextRun.Before(h[j].nextRun)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	e := x.(*taskEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is a single-threaded cooperative task runner: callers invoke
// Start from one dedicated goroutine (the "scheduler thread"); AddTask may
// be called from that same goroutine (a task adding further tasks to its
// own scheduler) or from any other goroutine before Start.
type Scheduler struct {
	log zerolog.Logger

	mu      sync.Mutex
	tasks   taskHeap
	nextSeq uint64
	nextID  uint64
	state   State

	wake chan struct{}
	done chan struct{}
}

// Create returns an empty scheduler in Idle.
func Create(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		log:   log.With().Str("component", "scheduler").Logger(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		state: Idle,
	}
}

// AddTask inserts a new entry and returns an opaque handle. Safe to call
// before Start, or from within a running task on its own scheduler.
func (s *Scheduler) AddTask(firstRun time.Time, action Action, actionArg any, cleanup Cleanup, cleanupArg any, interval time.Duration) Handle {
	s.mu.Lock()
	s.nextSeq++
	s.nextID++
	e := &taskEntry{
		id:         s.nextID,
		seq:        s.nextSeq,
		nextRun:    firstRun,
		action:     action,
		actionArg:  actionArg,
		cleanup:    cleanup,
		cleanupArg: cleanupArg,
		interval:   interval,
	}
	heap.Push(&s.tasks, e)
	s.mu.Unlock()

	s.nudge()
	return Handle{id: e.id}
}

// nudge wakes a sleeping Start loop so it can reconsider the queue head.
func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start transitions to Running and loops: peek the head, sleep until its
// deadline, dequeue, invoke its action, then reschedule or remove per the
// action's return value. Exits when the queue empties or Stop is observed.
// Intended to be run on its own goroutine by the caller.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.state = Running
	s.mu.Unlock()
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.state == StopRequested {
			s.mu.Unlock()
			return
		}
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return
		}
		head := s.tasks[0]
		wait := time.Until(head.nextRun)
		s.mu.Unlock()

		if wait > 0 {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-s.wake:
				continue
			}
		}

		s.mu.Lock()
		if s.state == StopRequested || len(s.tasks) == 0 {
			s.mu.Unlock()
			return
		}
		// Re-peek: a wake may have reordered the head while we waited.
		if time.Now().Before(s.tasks[0].nextRun) {
			s.mu.Unlock()
			continue
		}
		e := heap.Pop(&s.tasks).(*taskEntry)
		s.mu.Unlock()

		delta := e.action(e.actionArg)

		s.reschedule(e, delta)
	}
}

func (s *Scheduler) reschedule(e *taskEntry, delta time.Duration) {
	now := time.Now()
	switch {
	case delta > 0:
		e.nextRun = now.Add(delta)
	case delta == Repeat:
		if e.interval > 0 {
			e.nextRun = now.Add(e.interval)
		} else {
			s.finish(e)
			return
		}
	default: // delta < 0 (Done)
		s.finish(e)
		return
	}

	s.mu.Lock()
	s.nextSeq++
	e.seq = s.nextSeq
	heap.Push(&s.tasks, e)
	s.mu.Unlock()
}

func (s *Scheduler) finish(e *taskEntry) {
	if e.cleanup != nil {
		e.cleanup(e.cleanupArg)
	}
}

// Stop requests StopRequested; the in-flight action finishes, then the
// loop exits before the next dequeue. Safe to call from any goroutine,
// including from within a running task.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StopRequested {
		s.state = StopRequested
	}
	s.mu.Unlock()
	s.nudge()
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel closed once Start has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Destroy must be called only after Start has returned. It invokes
// Cleanup on any still-queued entries and releases storage.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.tasks {
		if e.cleanup != nil {
			e.cleanup(e.cleanupArg)
		}
	}
	s.tasks = nil
}
