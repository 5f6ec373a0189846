package dlqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_NeverExceedsCap(t *testing.T) {
	g := NewGate(3)

	var cur, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Acquire()
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			cur.Add(-1)
			g.Release()
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > 3 {
		t.Fatalf("peak concurrency = %d; want <= 3", p)
	}
	if g.InUse() != 0 {
		t.Fatalf("InUse = %d after all released; want 0", g.InUse())
	}
}

func TestGate_TryAcquireAndRelease(t *testing.T) {
	g := NewGate(1)
	if !g.tryAcquire() {
		t.Fatal("tryAcquire on free gate = false")
	}
	if g.tryAcquire() {
		t.Fatal("tryAcquire on full gate = true")
	}
	g.Release()
	g.Release() // extra release must not add a permit
	if g.InUse() != 0 || g.Cap() != 1 {
		t.Fatalf("InUse=%d Cap=%d; want 0,1", g.InUse(), g.Cap())
	}
	if !g.tryAcquire() || g.tryAcquire() {
		t.Fatal("over-release changed the permit count")
	}
}

func TestGate_AcquireBlocksUntilRelease(t *testing.T) {
	g := NewGate(1)
	g.Acquire()

	acquired := make(chan struct{})
	go func() {
		g.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire returned while no permit was free")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after Release")
	}
}

func TestNewGate_MinimumOnePermit(t *testing.T) {
	if c := NewGate(0).Cap(); c != 1 {
		t.Fatalf("Cap = %d; want 1", c)
	}
}
