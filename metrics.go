package dlqueue

import (
	"sync/atomic"
)

// MetricsPolicy defines hooks used by the pool to report job lifecycle
// activity.
//
// Implementations must be safe for concurrent use.
// All methods are expected to be lightweight and non-blocking.
type MetricsPolicy interface {
	IncSubmitted()
	IncStarted()
	IncRetried()
	IncCompleted()
	IncFailed()
}

// AtomicMetrics is a lock-free metrics implementation backed by atomics.
type AtomicMetrics struct {
	submitted atomic.Uint64
	started   atomic.Uint64
	retried   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

func (m *AtomicMetrics) IncSubmitted() { m.submitted.Add(1) }
func (m *AtomicMetrics) IncStarted()   { m.started.Add(1) }
func (m *AtomicMetrics) IncRetried()   { m.retried.Add(1) }
func (m *AtomicMetrics) IncCompleted() { m.completed.Add(1) }
func (m *AtomicMetrics) IncFailed()    { m.failed.Add(1) }

// Submitted returns the number of accepted submissions.
func (m *AtomicMetrics) Submitted() uint64 { return m.submitted.Load() }

// Started returns the number of performer invocations, retries included.
func (m *AtomicMetrics) Started() uint64 { return m.started.Load() }

// Retried returns how many times a job was put back on the queue.
func (m *AtomicMetrics) Retried() uint64 { return m.retried.Load() }

func (m *AtomicMetrics) Completed() uint64 { return m.completed.Load() }
func (m *AtomicMetrics) Failed() uint64    { return m.failed.Load() }

//------------- NoopMetrics ----------------------------------

// NoopMetrics discards all metric updates.
type NoopMetrics struct{}

func (m *NoopMetrics) IncSubmitted() {}
func (m *NoopMetrics) IncStarted()   {}
func (m *NoopMetrics) IncRetried()   {}
func (m *NoopMetrics) IncCompleted() {}
func (m *NoopMetrics) IncFailed()    {}
