package dlqueue

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxRetries = 3
	jobIDPrefix       = "job-"
)

// Params are execution options handed to the Performer untouched.
type Params map[string]any

// Result is the opaque payload a Performer returns on success.
type Result map[string]any

// JobState is the lifecycle position of a job.
type JobState int

const (
	StatePending JobState = iota
	StateActive
	StateCompleted
	StateFailed
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state can no longer change.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Job is the handle returned by Submit. Identity fields are immutable;
// lifecycle fields are written only by the Ledger under its lock and are
// read through JobInfo snapshots.
type Job struct {
	id     string
	target string
	params Params
	ctx    context.Context

	priority    Priority
	state       JobState
	retryCount  int
	maxRetries  int
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	lastError   string
	result      Result

	done     chan struct{}
	doneOnce sync.Once

	// retry delay state, touched only by the worker that owns the job
	delay func() time.Duration
}

// JobOption tunes a single submission.
type JobOption func(*Job)

// WithMaxRetries overrides the pool's retry budget for one job.
// Negative values are treated as zero.
func WithMaxRetries(n int) JobOption {
	return func(j *Job) {
		if n < 0 {
			n = 0
		}
		j.maxRetries = n
	}
}

func newJob(ctx context.Context, target string, prio Priority, params Params, maxRetries int) *Job {
	if ctx == nil {
		ctx = context.Background()
	}
	if !prio.Valid() {
		prio = PriorityNormal
	}
	return &Job{
		id:         generateJobID(),
		target:     target,
		params:     maps.Clone(params),
		ctx:        ctx,
		priority:   prio,
		state:      StatePending,
		maxRetries: maxRetries,
		createdAt:  time.Now(),
		done:       make(chan struct{}),
	}
}

func (j *Job) ID() string     { return j.id }
func (j *Job) Target() string { return j.target }

// Params returns a copy of the submission options.
func (j *Job) Params() Params { return maps.Clone(j.params) }

// Done is closed once the job reaches completed or failed.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) finish() {
	j.doneOnce.Do(func() { close(j.done) })
}

// info copies the job. Callers hold the ledger lock.
func (j *Job) info() JobInfo {
	return JobInfo{
		ID:          j.id,
		Target:      j.target,
		Params:      maps.Clone(j.params),
		Priority:    j.priority,
		State:       j.state,
		RetryCount:  j.retryCount,
		MaxRetries:  j.maxRetries,
		CreatedAt:   j.createdAt,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
		LastError:   j.lastError,
		Result:      maps.Clone(j.result),
	}
}

// JobInfo is a point-in-time copy of a job.
type JobInfo struct {
	ID          string
	Target      string
	Params      Params
	Priority    Priority
	State       JobState
	RetryCount  int
	MaxRetries  int
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	LastError   string
	Result      Result
}

// Duration is the time between first activation and the terminal state.
func (ji JobInfo) Duration() time.Duration {
	if ji.StartedAt.IsZero() || ji.CompletedAt.IsZero() {
		return 0
	}
	return ji.CompletedAt.Sub(ji.StartedAt)
}

// generateJobID uses UUID v7 so ids sort by creation time.
func generateJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf(jobIDPrefix+"%d", time.Now().UnixNano())
	}
	return jobIDPrefix + id.String()
}
