package dlqueue

// Gate is a counting permit pool that bounds how many jobs run at once.
// Acquire waits without a deadline: backpressure is an unbounded wait,
// never a rejection.
type Gate struct {
	sem chan struct{}
}

// NewGate creates a gate with n permits. n < 1 is raised to 1.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{sem: make(chan struct{}, n)}
}

// Acquire blocks until a permit is available.
func (g *Gate) Acquire() {
	g.sem <- struct{}{}
}

// tryAcquire takes a permit only if one is free right now.
func (g *Gate) tryAcquire() bool {
	select {
	case g.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a permit. Releasing more than was acquired is a no-op.
func (g *Gate) Release() {
	select {
	case <-g.sem:
	default:
	}
}

// InUse returns the number of outstanding permits.
func (g *Gate) InUse() int { return len(g.sem) }

// Cap returns the total number of permits.
func (g *Gate) Cap() int { return cap(g.sem) }
