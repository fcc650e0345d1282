package dot1x

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// TimerHandle identifies a scheduled callback for cancellation.
type TimerHandle uint64

type timerEntry struct {
	deadline time.Time
	handle   TimerHandle
	token    any
	callback func(token any)
	canceled bool
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry) //nolint:forcetypeassert // internal container/heap plumbing only
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// command is a schedule/cancel request sent to the scheduler's single
// worker goroutine. TimerScheduler's heap is single-writer (§5): other
// tasks never touch it directly, they enqueue a command instead.
type command struct {
	schedule *timerEntry
	cancel   TimerHandle
}

// TimerScheduler is a monotonic-time min-heap of deferred callbacks served
// by a single worker goroutine (§4.4). Callback execution is serialized on
// the worker: callbacks that need to do I/O must enqueue work to the
// appropriate queue rather than block.
//
// Many session timers sharing one worker calls for a deadline-ordered
// priority queue rather than one time.Timer per session; this is built
// directly on the standard library's container/heap, the idiomatic Go
// vehicle for a min-heap, since no third-party library in reach fits this
// shape better than the stdlib primitive built for exactly it.
type TimerScheduler struct {
	mu      sync.Mutex
	cmds    chan command
	nextID  uint64
	pending map[TimerHandle]struct{}
}

// NewTimerScheduler creates a scheduler. Call Run in its own goroutine to
// start serving scheduled callbacks.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{
		cmds:    make(chan command, 1024),
		pending: make(map[TimerHandle]struct{}),
	}
}

// Schedule arranges for callback(token) to run (on the scheduler's worker
// goroutine) at deadline. Returns a handle usable with Cancel.
func (s *TimerScheduler) Schedule(deadline time.Time, token any, callback func(token any)) TimerHandle {
	s.mu.Lock()
	s.nextID++
	handle := TimerHandle(s.nextID)
	s.pending[handle] = struct{}{}
	s.mu.Unlock()

	s.cmds <- command{schedule: &timerEntry{deadline: deadline, handle: handle, token: token, callback: callback}}
	return handle
}

// Cancel cancels a previously scheduled callback. Idempotent: canceling an
// already-fired or already-canceled handle is a no-op.
func (s *TimerScheduler) Cancel(handle TimerHandle) {
	s.mu.Lock()
	delete(s.pending, handle)
	s.mu.Unlock()

	s.cmds <- command{cancel: handle}
}

// Run serves the scheduler until ctx is canceled. It sleeps until the
// earliest deadline, fires all ready callbacks in deadline order, then
// re-sleeps — the "timer" task of the Dispatcher (§4.8).
func (s *TimerScheduler) Run(ctx context.Context) {
	h := &timerHeap{}
	byHandle := make(map[TimerHandle]*timerEntry)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		var wait time.Duration
		if h.Len() > 0 {
			wait = max(time.Until((*h)[0].deadline), 0)
		} else {
			wait = time.Hour
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return

		case cmd := <-s.cmds:
			if cmd.schedule != nil {
				byHandle[cmd.schedule.handle] = cmd.schedule
				heap.Push(h, cmd.schedule)
			} else {
				if e, ok := byHandle[cmd.cancel]; ok {
					e.canceled = true
				}
			}

		case <-timer.C:
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].deadline.After(now) {
				e := heap.Pop(h).(*timerEntry) //nolint:forcetypeassert // container/heap plumbing
				delete(byHandle, e.handle)
				s.mu.Lock()
				_, stillPending := s.pending[e.handle]
				delete(s.pending, e.handle)
				s.mu.Unlock()
				if e.canceled || !stillPending {
					continue
				}
				e.callback(e.token)
			}
		}
	}
}
