package dlqueue

// Status is a point-in-time view of the pool.
//
// QueueSize and the ledger counts are read under separate locks, so a job
// moving between the queue and the ledger may briefly be counted in
// neither. The numbers settle once the workers are idle.
type Status struct {
	QueueSize     int
	Retrying      int // failed attempts waiting out their backoff
	Active        int
	Completed     int
	Failed        int
	MaxConcurrent int
	InFlight      int
	Running       bool
	Workers       int
}

// Total is the number of jobs the snapshot accounts for.
func (s Status) Total() int {
	return s.QueueSize + s.Retrying + s.Active + s.Completed + s.Failed
}

// StatusReporter is the read-only view external pollers depend on.
type StatusReporter interface {
	Status() Status
}

var _ StatusReporter = (*Pool)(nil)

// Status never blocks on running jobs.
func (p *Pool) Status() Status {
	queued := p.queue.Len()
	active, completed, failed := p.ledger.Counts()
	return Status{
		QueueSize:     queued,
		Retrying:      p.retryingCount(),
		Active:        active,
		Completed:     completed,
		Failed:        failed,
		MaxConcurrent: p.gate.Cap(),
		InFlight:      p.gate.InUse(),
		Running:       p.Running(),
		Workers:       p.workerCount(),
	}
}
