package dlqueue

import (
	"time"
)

// backoff.Next draws its jitter from [Initial/2, Initial), which must not be empty.
const minBackoff = time.Millisecond

// RetryPolicy describes how often a failed job goes back on the queue and
// how long the worker waits before putting it there.
type RetryPolicy struct {
	// MaxRetries is the number of re-enqueues after the first attempt.
	// A job is therefore tried at most MaxRetries+1 times.
	MaxRetries int

	// Initial is the first backoff duration. Zero re-enqueues immediately.
	Initial time.Duration

	// Max is the cap for backoff duration.
	Max time.Duration
}

// GetDefaultRP returns the retry policy FillDefaults falls back to when
// Options.Retry.MaxRetries is unset and NoRetries is false.
func GetDefaultRP() *RetryPolicy {
	rp := RetryPolicy{
		MaxRetries: DefaultMaxRetries,
	}
	return &rp
}

func (rp RetryPolicy) delayed() bool {
	return rp.Initial > 0
}

func (rp *RetryPolicy) fillDefaults() {
	if rp.MaxRetries < 0 {
		rp.MaxRetries = 0
	}
	if rp.Initial > 0 && rp.Initial < minBackoff {
		rp.Initial = minBackoff
	}
	if rp.Initial > 0 && rp.Max < rp.Initial {
		rp.Max = rp.Initial
	}
}
