package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerStartsAtZero(t *testing.T) {
	tracker := NewTracker()

	sets, bytes := tracker.Snapshot()
	assert.Equal(t, 0, sets)
	assert.Equal(t, int64(0), bytes)
}

func TestTrackerAccumulates(t *testing.T) {
	tracker := NewTracker()

	tracker.AddBytes(3)
	tracker.CompleteSet()
	tracker.AddBytes(1024)
	tracker.CompleteSet()

	sets, bytes := tracker.Snapshot()
	assert.Equal(t, 2, sets)
	assert.Equal(t, int64(1027), bytes)
}

func TestTrackersAreIndependent(t *testing.T) {
	a := NewTracker()
	b := NewTracker()

	a.CompleteSet()
	a.AddBytes(100)

	sets, bytes := b.Snapshot()
	assert.Equal(t, 0, sets)
	assert.Equal(t, int64(0), bytes)
}

func TestProgressLine(t *testing.T) {
	tracker := NewTracker()
	tracker.CompleteSet()
	tracker.AddBytes(3 * 1024 * 1024)

	line := tracker.ProgressLine()
	assert.Equal(t, "downloaded 1 image set(s), 3.00 MB this session", line)
}
