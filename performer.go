package dlqueue

import (
	"context"
)

// Performer does the actual work for a job: fetch a resource, transcode,
// anything. It is called concurrently from several workers with different
// targets and may block for as long as the work takes.
//
// Returning a non-nil error, or a Result with an "error" entry of any
// value, counts as a failed attempt.
type Performer interface {
	Perform(ctx context.Context, target string, params Params) (Result, error)
}

// PerformerFunc adapts a plain function to Performer.
type PerformerFunc func(ctx context.Context, target string, params Params) (Result, error)

func (f PerformerFunc) Perform(ctx context.Context, target string, params Params) (Result, error) {
	return f(ctx, target, params)
}
