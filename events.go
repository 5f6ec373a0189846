package dlqueue

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind names a lifecycle transition.
type EventKind int

const (
	EventSubmitted EventKind = iota
	EventStarted
	EventProgress
	EventRetrying
	EventCompleted
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventSubmitted:
		return "submitted"
	case EventStarted:
		return "started"
	case EventProgress:
		return "progress"
	case EventRetrying:
		return "retrying"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one notification on the pool's event stream.
type Event struct {
	Kind     EventKind
	Job      JobInfo
	Progress *Progress
	Err      string
	Time     time.Time
}

// Events fans lifecycle notifications out to subscribers. Delivery never
// blocks the publisher: a subscriber whose buffer is full misses the event
// and the drop is counted.
type Events struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	next    uint64
	closed  bool
	dropped atomic.Uint64
}

func NewEvents() *Events {
	return &Events{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a new receiver with a buffer of size buf. The
// returned cancel func unsubscribes and closes the channel; it is safe to
// call more than once.
func (e *Events) Subscribe(buf int) (<-chan Event, func()) {
	if buf < 0 {
		buf = 0
	}
	ch := make(chan Event, buf)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := e.next
	e.next++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
			e.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber that has room for it.
func (e *Events) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped for full subscribers.
func (e *Events) Dropped() uint64 { return e.dropped.Load() }

// Close unsubscribes everyone. Later Subscribe calls get a closed channel.
func (e *Events) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}
