package dlqueue

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Progress is the latest transfer state a Performer reported for a job.
type Progress struct {
	Status          string
	DownloadedBytes int64
	TotalBytes      int64 // zero when unknown
	Speed           float64
	ETA             time.Duration
	Filename        string
	UpdatedAt       time.Time
}

// Percent returns the completed share in [0,100], or false when the total
// size is unknown.
func (p Progress) Percent() (float64, bool) {
	if p.TotalBytes <= 0 {
		return 0, false
	}
	return float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100, true
}

type progressKey struct{}

// ProgressFunc receives progress updates for one job.
type ProgressFunc func(Progress)

// WithProgress returns a context carrying fn as the progress sink. The pool
// installs one for every Perform call.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress forwards p to the sink stored in ctx, if any. Performers
// call it from inside Perform.
func ReportProgress(ctx context.Context, p Progress) {
	fn, ok := ctx.Value(progressKey{}).(ProgressFunc)
	if !ok || fn == nil {
		return
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	fn(p)
}

// ProgressTracker keeps the latest Progress per job id.
type ProgressTracker struct {
	mu sync.RWMutex
	m  map[string]Progress
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{m: make(map[string]Progress)}
}

func (t *ProgressTracker) Update(id string, p Progress) {
	t.mu.Lock()
	t.m[id] = p
	t.mu.Unlock()
}

func (t *ProgressTracker) Get(id string) (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.m[id]
	return p, ok
}

// All returns a copy of every tracked entry.
func (t *ProgressTracker) All() map[string]Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.m)
}
