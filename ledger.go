package dlqueue

import (
	"sync"
	"time"
)

// Ledger tracks active, completed and failed jobs. Every method takes the
// single ledger mutex for the duration of the map update only; the
// Performer is never called with it held.
type Ledger struct {
	mu sync.Mutex

	active    map[string]*Job
	completed map[string]*Job
	failed    map[string]*Job

	jobs     map[string]*Job // every job seen, by id
	byTarget map[string]*Job // most recent submission per target
	inflight map[string]*Job // pending or active, by target
}

// LedgerSnapshot is a copy of the three ledger maps, keyed by job id.
type LedgerSnapshot struct {
	Active    map[string]JobInfo
	Completed map[string]JobInfo
	Failed    map[string]JobInfo
}

func NewLedger() *Ledger {
	return &Ledger{
		active:    make(map[string]*Job),
		completed: make(map[string]*Job),
		failed:    make(map[string]*Job),
		jobs:      make(map[string]*Job),
		byTarget:  make(map[string]*Job),
		inflight:  make(map[string]*Job),
	}
}

// Register records a freshly submitted job.
func (l *Ledger) Register(job *Job) {
	l.mu.Lock()
	l.register(job)
	l.mu.Unlock()
}

// Inflight returns the pending or active job for target, if any.
func (l *Ledger) Inflight(target string) (*Job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.inflight[target]
	return j, ok
}

func (l *Ledger) register(job *Job) {
	l.jobs[job.id] = job
	l.byTarget[job.target] = job
	l.inflight[job.target] = job
}

// MarkActive moves a popped job into the active map. StartedAt is set on
// the first activation only.
func (l *Ledger) MarkActive(job *Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if job.startedAt.IsZero() {
		job.startedAt = time.Now()
	}
	job.state = StateActive
	l.active[job.id] = job
}

// MarkCompleted records a successful run. The job is terminal afterwards.
func (l *Ledger) MarkCompleted(job *Job, res Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, job.id)
	job.state = StateCompleted
	job.result = res
	job.completedAt = time.Now()
	l.completed[job.id] = job
	l.settle(job)
}

// MarkFailed applies the retry policy. While retries remain, the retry
// count goes up, the priority drops one level and true is returned: the
// caller must push the job back onto the queue. Otherwise the job lands in
// the failed map and false is returned.
func (l *Ledger) MarkFailed(job *Job, err error) bool {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, job.id)
	job.lastError = msg

	if job.retryCount < job.maxRetries {
		job.retryCount++
		job.priority = job.priority.Lower()
		job.state = StatePending
		return true
	}

	job.state = StateFailed
	job.completedAt = time.Now()
	l.failed[job.id] = job
	l.settle(job)
	return false
}

func (l *Ledger) settle(job *Job) {
	if l.inflight[job.target] == job {
		delete(l.inflight, job.target)
	}
	job.finish()
}

// Snapshot copies the active, completed and failed maps.
func (l *Ledger) Snapshot() LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LedgerSnapshot{
		Active:    infoMap(l.active),
		Completed: infoMap(l.completed),
		Failed:    infoMap(l.failed),
	}
}

func infoMap(m map[string]*Job) map[string]JobInfo {
	out := make(map[string]JobInfo, len(m))
	for id, j := range m {
		out[id] = j.info()
	}
	return out
}

// Counts returns the sizes of the active, completed and failed maps.
func (l *Ledger) Counts() (active, completed, failed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active), len(l.completed), len(l.failed)
}

// Info snapshots a single job.
func (l *Ledger) Info(job *Job) JobInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return job.info()
}

// Lookup finds a job by id.
func (l *Ledger) Lookup(id string) (JobInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return j.info(), true
}

// ByTarget returns the most recent job submitted for target.
func (l *Ledger) ByTarget(target string) (JobInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	j, ok := l.byTarget[target]
	if !ok {
		return JobInfo{}, false
	}
	return j.info(), true
}
