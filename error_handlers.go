package dlqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTarget is returned by Submit for an empty target.
	ErrEmptyTarget = errors.New("dlqueue: empty target")

	// ErrBacklogFull is returned by Submit when Options.MaxBacklog
	// jobs are already pending.
	ErrBacklogFull = errors.New("dlqueue: backlog full")

	// ErrNilPerformer is returned by Start when the pool has no Performer.
	ErrNilPerformer = errors.New("dlqueue: performer is nil")

	// ErrPoolRunning is returned by Start when workers are already running.
	ErrPoolRunning = errors.New("dlqueue: pool already running")
)

// PanicError wraps a value recovered from a panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dlqueue: panic: %v", e.Value)
}

// reportInternalError reports a failure in the pool's own bookkeeping.
// If no handler is registered, the error is only logged by the caller.
func (p *Pool) reportInternalError(e error) {
	if p.opts.OnInternalError != nil {
		p.opts.OnInternalError(e)
	}
}

// reportJobError reports an error returned by the Performer or produced
// by panic recovery. It is called for every failed attempt, retried or not.
func (p *Pool) reportJobError(info JobInfo, err error) {
	if p.opts.OnJobError != nil {
		p.opts.OnJobError(info, err)
	}
}
