package stats

import (
	"fmt"
	"sync"
	"time"
)

// Tracker accumulates session totals: image sets written and bytes
// downloaded. Counters only move on actual writes, so a run that skips
// everything reports zeros. One Tracker per run, passed explicitly.
type Tracker struct {
	mu        sync.Mutex
	imageSets int
	bytes     int64
	startTime time.Time
}

// NewTracker creates a tracker with zeroed counters
func NewTracker() *Tracker {
	return &Tracker{
		startTime: time.Now(),
	}
}

// AddBytes records n bytes actually written to storage
func (t *Tracker) AddBytes(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bytes += n
}

// CompleteSet records one record that produced at least one new asset
func (t *Tracker) CompleteSet() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.imageSets++
}

// Snapshot returns the current cumulative totals
func (t *Tracker) Snapshot() (imageSets int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.imageSets, t.bytes
}

// Elapsed returns the time since the tracker was created
func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.startTime)
}

// ProgressLine renders the cumulative session totals as one human-readable
// line for the operator.
func (t *Tracker) ProgressLine() string {
	sets, bytes := t.Snapshot()
	return fmt.Sprintf("downloaded %d image set(s), %.2f MB this session", sets, float64(bytes)/(1024*1024))
}
