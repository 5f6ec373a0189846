package dlqueue_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	dq "github.com/azargarov/dlqueue"
)

const testTimeout = 5 * time.Second

func newTestPool(t *testing.T, perf dq.Performer, opts dq.Options) *dq.Pool {
	t.Helper()
	if opts.PopTimeout == 0 {
		opts.PopTimeout = 5 * time.Millisecond
	}
	p := dq.New(perf, opts)
	t.Cleanup(p.Close)
	return p
}

func startPool(t *testing.T, p *dq.Pool, workers int) {
	t.Helper()
	if err := p.Start(context.Background(), workers); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func submit(t *testing.T, p *dq.Pool, target string, prio dq.Priority, opts ...dq.JobOption) *dq.Job {
	t.Helper()
	j, err := p.Submit(context.Background(), target, prio, nil, opts...)
	if err != nil {
		t.Fatalf("Submit(%s): %v", target, err)
	}
	return j
}

func waitJobs(t *testing.T, p *dq.Pool, jobs ...*dq.Job) []dq.JobInfo {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	infos, err := p.Wait(ctx, jobs...)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return infos
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not satisfied before timeout")
}
