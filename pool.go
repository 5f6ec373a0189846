package dlqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
)

// Pool runs worker loops that drain a PriorityQueue, bound concurrent work
// with a Gate and record outcomes in a Ledger.
//
// A Pool is created stopped. Jobs may be submitted at any time; they wait
// in the queue until Start is called.
type Pool struct {
	performer Performer
	opts      Options

	queue    *PriorityQueue
	gate     *Gate
	ledger   *Ledger
	events   *Events
	progress *ProgressTracker

	mu  sync.Mutex
	run *runState

	submitMu sync.Mutex

	retryMu  sync.Mutex
	retrying map[*Job]*time.Timer

	activeWorkers atomic.Int32
}

// runState belongs to one Start/Stop cycle.
type runState struct {
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	workers  int
}

func (r *runState) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *runState) stopping() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// New creates a stopped pool around performer.
func New(performer Performer, opts Options) *Pool {
	opts.FillDefaults()
	return &Pool{
		performer: performer,
		opts:      opts,
		queue:     NewPriorityQueue(),
		gate:      NewGate(opts.MaxConcurrent),
		ledger:    NewLedger(),
		events:    NewEvents(),
		progress:  NewProgressTracker(),
		retrying:  make(map[*Job]*time.Timer),
	}
}

// Start launches workers worker loops; workers <= 0 uses Options.Workers.
// ctx only supplies the logger; cancelling it does not stop the pool.
func (p *Pool) Start(ctx context.Context, workers int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.performer == nil {
		return ErrNilPerformer
	}
	if workers <= 0 {
		workers = p.opts.Workers
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != nil {
		return ErrPoolRunning
	}
	r := &runState{stop: make(chan struct{}), workers: workers}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go p.worker(r, i)
	}
	p.run = r

	lg.FromContext(ctx).Info("Pool started",
		lg.Int("workers", workers),
		lg.Int("max_concurrent", p.gate.Cap()),
		lg.Int("queued", p.queue.Len()),
	)
	return nil
}

// Shutdown asks every worker to stop after its current job and waits for
// all of them to exit, or for ctx to expire. In-flight Perform calls are
// never interrupted. Pending jobs stay queued for a later Start, and jobs
// waiting out a retry backoff are queued right away.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	r := p.run
	p.mu.Unlock()
	if r == nil {
		return nil
	}
	r.requestStop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	flushed := p.flushRetries()

	p.mu.Lock()
	if p.run == r {
		p.run = nil
	}
	p.mu.Unlock()
	lg.FromContext(ctx).Info("Pool stopped",
		lg.Int("queued", p.queue.Len()),
		lg.Int("backoffs_cut", flushed),
	)
	return nil
}

// Stop is the blocking form of Shutdown.
func (p *Pool) Stop() { _ = p.Shutdown(context.Background()) }

// Close stops the pool and closes every event subscription.
func (p *Pool) Close() {
	p.Stop()
	p.events.Close()
}

// Running reports whether workers are running and no stop was requested.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil && !p.run.stopping()
}

func (p *Pool) workerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		return 0
	}
	return p.run.workers
}

// ActiveWorkers returns how many workers are inside Perform right now.
func (p *Pool) ActiveWorkers() int32 { return p.activeWorkers.Load() }

// QueueLength returns the number of pending jobs.
func (p *Pool) QueueLength() int { return p.queue.Len() }

// Metrics returns the configured metrics sink.
func (p *Pool) Metrics() MetricsPolicy { return p.opts.Metrics }
