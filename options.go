package dlqueue

import (
	"time"
)

const (
	DefaultMaxConcurrent = 3
	DefaultPopTimeout    = 100 * time.Millisecond
	DefaultEventBuffer   = 64
)

// Options configure a Pool.
//
// All zero values are replaced with defaults in FillDefaults, except
// Retry.MaxRetries: use NoRetries to ask for zero retries explicitly.
type Options struct {
	// MaxConcurrent is the number of gate permits.
	MaxConcurrent int

	// Workers is the number of worker loops started by Start when it is
	// called with workers <= 0. Defaults to MaxConcurrent.
	Workers int

	// PopTimeout bounds each queue wait so workers notice Stop.
	PopTimeout time.Duration

	Retry RetryPolicy

	// NoRetries forces Retry.MaxRetries to zero.
	NoRetries bool

	// Dedup makes Submit return the existing job when the same target
	// is already pending or active.
	Dedup bool

	// MaxBacklog rejects submissions with ErrBacklogFull once this many
	// jobs are pending. Zero means unbounded. The cap only applies to
	// Submit: retries always go back on the queue, so the queue may hold
	// more than MaxBacklog jobs while failed attempts are requeued.
	MaxBacklog int

	// EventBuffer is the default channel size for Subscribe.
	EventBuffer int

	Metrics MetricsPolicy

	OnJobError      func(JobInfo, error)
	OnInternalError func(error)
}

func (o *Options) FillDefaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.Workers <= 0 {
		o.Workers = o.MaxConcurrent
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = DefaultPopTimeout
	}
	if o.NoRetries {
		o.Retry.MaxRetries = 0
	} else if o.Retry.MaxRetries <= 0 {
		o.Retry.MaxRetries = GetDefaultRP().MaxRetries
	}
	o.Retry.fillDefaults()
	if o.MaxBacklog < 0 {
		o.MaxBacklog = 0
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.Metrics == nil {
		o.Metrics = &NoopMetrics{}
	}
}
