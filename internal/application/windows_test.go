package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupRecordWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDedupRecord(10 * time.Second)

	assert.False(t, d.Fresh(1, now))
	d.Record(1, now)
	assert.True(t, d.Fresh(1, now.Add(9*time.Second)))
	assert.False(t, d.Fresh(1, now.Add(10*time.Second)), "an entry exactly window old is no longer fresh")
	assert.Equal(t, 1, d.Len(), "pruning only drops entries strictly older than the window")
	assert.False(t, d.Fresh(1, now.Add(11*time.Second)))
	assert.Equal(t, 0, d.Len())
}

func TestDedupRecordZeroWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	d := NewDedupRecord(0)
	d.Record(1, now)
	assert.False(t, d.Fresh(1, now))
	assert.Equal(t, 0, d.Len())
}

func TestRateWindowCount(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewRateWindow(time.Minute)
	w.Add(now)
	w.Add(now.Add(30 * time.Second))

	assert.Equal(t, 2, w.Count(now.Add(60*time.Second)))
	assert.Equal(t, 1, w.Count(now.Add(61*time.Second)))
	assert.Equal(t, 0, w.Count(now.Add(91*time.Second)))
}
