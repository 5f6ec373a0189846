package dlqueue

import (
	"errors"
	"fmt"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
	lg "github.com/Andrej220/go-utils/zlog"
)

// worker pops jobs until its run is stopped. The stop request is noticed
// at the top of the loop, so at the latest one PopTimeout after it was made.
func (p *Pool) worker(r *runState, id int) {
	defer r.wg.Done()
	for !r.stopping() {
		job, ok := p.queue.Pop(p.opts.PopTimeout)
		if !ok {
			continue
		}
		p.handle(job, id)
	}
}

// handle walks one job through waiting-for-permit, running and recording.
// Nothing that goes wrong here may kill the worker: a panic in the
// bookkeeping is reported as an internal error and the job is failed.
func (p *Pool) handle(job *Job, workerID int) {
	logger := lg.FromContext(job.ctx).With(
		lg.String("job", job.id),
		lg.String("target", job.target),
		lg.Int("worker", workerID),
	)

	var recorded, requeue, pushed bool
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("dlqueue: worker %d: %w", workerID, &PanicError{Value: r})
		logger.Error("worker bookkeeping panicked", lg.Any("panic", r))
		p.reportInternalError(err)
		if !recorded {
			requeue = p.ledger.MarkFailed(job, err)
		}
		if requeue && !pushed {
			p.queue.Push(job)
		}
	}()

	p.gate.Acquire()
	released := false
	release := func() {
		if !released {
			released = true
			p.gate.Release()
		}
	}
	defer release()

	p.ledger.MarkActive(job)
	p.opts.Metrics.IncStarted()
	p.activeWorkers.Add(1)
	logger.Info("Worker processing job", lg.Int32("active_workers", p.activeWorkers.Load()))
	p.events.Publish(Event{Kind: EventStarted, Job: p.ledger.Info(job)})

	res, err := p.perform(job)
	p.activeWorkers.Add(-1)

	if err != nil {
		requeue = p.ledger.MarkFailed(job, err)
		recorded = true
		info := p.ledger.Info(job)
		p.reportJobError(info, err)
		if requeue {
			p.opts.Metrics.IncRetried()
			logger.Warn("job attempt failed; requeueing",
				lg.Int("retry", info.RetryCount),
				lg.Int("max_retries", info.MaxRetries),
				lg.String("priority", info.Priority.String()),
				lg.Any("error", err),
			)
			p.events.Publish(Event{Kind: EventRetrying, Job: info, Err: info.LastError})
		} else {
			p.opts.Metrics.IncFailed()
			logger.Error("job failed", lg.Int("attempts", info.RetryCount+1), lg.Any("error", err))
			p.events.Publish(Event{Kind: EventFailed, Job: info, Err: info.LastError})
		}
	} else {
		p.ledger.MarkCompleted(job, res)
		recorded = true
		info := p.ledger.Info(job)
		p.opts.Metrics.IncCompleted()
		logger.Info("Worker finished",
			lg.Int("retries", info.RetryCount),
			lg.String("duration", info.Duration().String()),
		)
		p.events.Publish(Event{Kind: EventCompleted, Job: info})
	}
	release()

	if requeue {
		p.scheduleRetry(job)
		pushed = true
	}
}

// perform calls the Performer with no lock held. Panics and results that
// carry an "error" entry come back as errors.
func (p *Pool) perform(job *Job) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, &PanicError{Value: r}
		}
	}()
	if err := job.ctx.Err(); err != nil {
		return nil, err
	}

	ctx := WithProgress(job.ctx, func(pr Progress) {
		p.progress.Update(job.id, pr)
		p.events.Publish(Event{Kind: EventProgress, Job: p.ledger.Info(job), Progress: &pr})
	})
	res, err = p.performer.Perform(ctx, job.target, job.params)
	if err != nil {
		return nil, err
	}
	if msg, failed := resultError(res); failed {
		return res, errors.New(msg)
	}
	return res, nil
}

// resultError reports whether res carries an "error" entry. Its presence
// alone marks the attempt failed; an empty value gets a generic message.
func resultError(res Result) (string, bool) {
	v, ok := res["error"]
	if !ok {
		return "", false
	}
	var msg string
	switch v := v.(type) {
	case nil:
	case string:
		msg = v
	case error:
		msg = v.Error()
	default:
		msg = fmt.Sprint(v)
	}
	if msg == "" {
		msg = "performer reported an error"
	}
	return msg, true
}

// scheduleRetry puts a failed job back on the queue. With a backoff
// configured the push happens from a timer, so the worker is free to run
// other jobs meanwhile.
func (p *Pool) scheduleRetry(job *Job) {
	if !p.opts.Retry.delayed() {
		p.queue.Push(job)
		return
	}
	if job.delay == nil {
		bo := boff.New(p.opts.Retry.Initial, p.opts.Retry.Max, time.Now().UnixNano())
		job.delay = bo.Next
	}
	delay := job.delay()
	lg.FromContext(job.ctx).Info("job backing off before requeue",
		lg.String("job", job.id),
		lg.String("sleep", delay.String()),
	)

	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	p.retrying[job] = time.AfterFunc(delay, func() { p.retryDue(job) })
}

// retryDue pushes job unless flushRetries already did.
func (p *Pool) retryDue(job *Job) {
	p.retryMu.Lock()
	_, ok := p.retrying[job]
	delete(p.retrying, job)
	p.retryMu.Unlock()
	if ok {
		p.queue.Push(job)
	}
}

// flushRetries cuts every pending backoff short and queues the jobs now.
func (p *Pool) flushRetries() int {
	p.retryMu.Lock()
	jobs := make([]*Job, 0, len(p.retrying))
	for job, t := range p.retrying {
		t.Stop()
		delete(p.retrying, job)
		jobs = append(jobs, job)
	}
	p.retryMu.Unlock()

	for _, job := range jobs {
		p.queue.Push(job)
	}
	return len(jobs)
}

func (p *Pool) retryingCount() int {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	return len(p.retrying)
}
