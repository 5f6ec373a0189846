package dlqueue

import (
	"context"
	"errors"
	"fmt"

	lg "github.com/Andrej220/go-utils/zlog"
)

// Submit queues target at prio. params are copied and handed to the
// Performer as-is. ctx scopes the job's logger and is the parent of the
// context passed to Perform; detach it with context.WithoutCancel for
// fire-and-forget submissions.
//
// Submit fails only for an empty target or a full backlog. Job failures are
// reported through the ledger, never from here. With Options.Dedup set, a
// target that is already pending or active returns the existing job, even
// when the backlog is full.
func (p *Pool) Submit(ctx context.Context, target string, prio Priority, params Params, opts ...JobOption) (*Job, error) {
	if target == "" {
		return nil, ErrEmptyTarget
	}

	job := newJob(ctx, target, prio, params, p.opts.Retry.MaxRetries)
	for _, o := range opts {
		o(job)
	}
	logger := lg.FromContext(job.ctx)

	// check and admit under one lock so concurrent submitters cannot
	// overshoot MaxBacklog or register the same target twice
	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	if p.opts.Dedup {
		if cur, ok := p.ledger.Inflight(target); ok {
			logger.Info("Job already tracked", lg.String("job", cur.id), lg.String("target", target))
			return cur, nil
		}
	}
	if p.opts.MaxBacklog > 0 && p.queue.Len() >= p.opts.MaxBacklog {
		return nil, ErrBacklogFull
	}
	p.ledger.Register(job)

	p.opts.Metrics.IncSubmitted()
	logger.Info("Job submitted",
		lg.String("job", job.id),
		lg.String("target", target),
		lg.String("priority", job.priority.String()),
	)
	// publish before the push so EventSubmitted always precedes EventStarted
	p.events.Publish(Event{Kind: EventSubmitted, Job: p.ledger.Info(job)})
	p.queue.Push(job)
	return job, nil
}

// SubmitMany submits every target with the same priority and params. On the
// first rejection it returns the jobs accepted so far with the error.
func (p *Pool) SubmitMany(ctx context.Context, targets []string, prio Priority, params Params, opts ...JobOption) ([]*Job, error) {
	jobs := make([]*Job, 0, len(targets))
	for _, t := range targets {
		job, err := p.Submit(ctx, t, prio, params, opts...)
		if err != nil {
			return jobs, fmt.Errorf("submit %q: %w", t, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Wait blocks until every job is completed or failed, or ctx is done. The
// returned infos are in the order of jobs; on ctx expiry they hold the
// state at that moment.
func (p *Pool) Wait(ctx context.Context, jobs ...*Job) ([]JobInfo, error) {
	var werr error
	for _, j := range jobs {
		if werr != nil {
			break
		}
		select {
		case <-j.Done():
		case <-ctx.Done():
			werr = ctx.Err()
		}
	}

	infos := make([]JobInfo, len(jobs))
	for i, j := range jobs {
		infos[i] = p.ledger.Info(j)
	}
	return infos, werr
}

// ProcessAll submits targets, starts the pool if it is idle and waits for
// every job to finish.
func (p *Pool) ProcessAll(ctx context.Context, targets []string, prio Priority, params Params, opts ...JobOption) ([]JobInfo, error) {
	jobs, err := p.SubmitMany(ctx, targets, prio, params, opts...)
	if err != nil {
		return nil, err
	}
	if err := p.Start(ctx, 0); err != nil && !errors.Is(err, ErrPoolRunning) {
		return nil, err
	}
	return p.Wait(ctx, jobs...)
}

// Result returns the most recent job submitted for target, whatever its
// state. Check State and Result/LastError on the returned info.
func (p *Pool) Result(target string) (JobInfo, bool) {
	return p.ledger.ByTarget(target)
}

// Lookup returns a job by id.
func (p *Pool) Lookup(id string) (JobInfo, bool) {
	return p.ledger.Lookup(id)
}

// Snapshot copies the ledger's active, completed and failed maps.
func (p *Pool) Snapshot() LedgerSnapshot {
	return p.ledger.Snapshot()
}

// Progress returns the last progress the Performer reported for job id.
func (p *Pool) Progress(id string) (Progress, bool) {
	return p.progress.Get(id)
}

// AllProgress returns the last reported progress of every job, by id.
func (p *Pool) AllProgress() map[string]Progress {
	return p.progress.All()
}

// Subscribe opens an event stream. buf <= 0 uses Options.EventBuffer.
// Call the returned func to unsubscribe.
func (p *Pool) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = p.opts.EventBuffer
	}
	return p.events.Subscribe(buf)
}
