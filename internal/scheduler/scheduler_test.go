package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txengine/internal/models"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	s := New(10, 10)
	now := time.Now()

	require.NoError(t, s.Enqueue(1, models.PriorityNormal, now))
	require.NoError(t, s.Enqueue(2, models.PriorityNormal, now))
	require.NoError(t, s.Enqueue(3, models.PriorityNormal, now))

	for _, want := range []uint64{1, 2, 3} {
		got, ok := s.DequeueHighest(nil)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := s.DequeueHighest(nil)
	assert.False(t, ok)
}

func TestDequeueStrictPriorityOrder(t *testing.T) {
	s := New(10, 10)
	now := time.Now()

	require.NoError(t, s.Enqueue(1, models.PriorityLow, now))
	require.NoError(t, s.Enqueue(2, models.PriorityCritical, now))
	require.NoError(t, s.Enqueue(3, models.PriorityNormal, now))
	require.NoError(t, s.Enqueue(4, models.PriorityUrgent, now))
	require.NoError(t, s.Enqueue(5, models.PriorityHigh, now))

	// Critical drains first, low last, regardless of enqueue order
	for _, want := range []uint64{2, 4, 5, 3, 1} {
		got, ok := s.DequeueHighest(nil)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestDequeueSkipsDeadEntries(t *testing.T) {
	s := New(10, 10)
	now := time.Now()

	require.NoError(t, s.Enqueue(1, models.PriorityCritical, now))
	require.NoError(t, s.Enqueue(2, models.PriorityCritical, now))
	require.NoError(t, s.Enqueue(3, models.PriorityLow, now))

	// 1 and 2 are no longer live; the scan falls through to the low queue
	got, ok := s.DequeueHighest(func(id uint64) bool { return id == 3 })
	require.True(t, ok)
	assert.Equal(t, uint64(3), got)

	// The dead entries were discarded during the scan
	assert.Equal(t, 0, s.Len())
}

func TestEnqueueQueueFull(t *testing.T) {
	s := New(2, 10)
	now := time.Now()

	require.NoError(t, s.Enqueue(1, models.PriorityLow, now))
	require.NoError(t, s.Enqueue(2, models.PriorityLow, now))
	assert.ErrorIs(t, s.Enqueue(3, models.PriorityLow, now), ErrQueueFull)

	// The cap is per priority, other queues still accept
	require.NoError(t, s.Enqueue(4, models.PriorityHigh, now))
}

func TestEnqueueInvalidPriority(t *testing.T) {
	s := New(10, 10)
	assert.Error(t, s.Enqueue(1, models.Priority(99), time.Now()))
}

func TestRemove(t *testing.T) {
	s := New(10, 10)
	now := time.Now()

	require.NoError(t, s.Enqueue(1, models.PriorityHigh, now))
	require.NoError(t, s.Enqueue(2, models.PriorityHigh, now))

	assert.True(t, s.Remove(1, models.PriorityHigh))
	assert.False(t, s.Remove(1, models.PriorityHigh))
	assert.False(t, s.Remove(2, models.PriorityLow))
	assert.Equal(t, 1, s.Len())
}

func TestSweepExpiresOldEntries(t *testing.T) {
	s := New(10, 10)
	base := time.Now()

	require.NoError(t, s.Enqueue(1, models.PriorityLow, base))
	require.NoError(t, s.Enqueue(2, models.PriorityHigh, base))
	require.NoError(t, s.Enqueue(3, models.PriorityHigh, base.Add(30*time.Second)))

	// At base+61s with a 60s timeout, the two entries from base expire
	expired := s.Sweep(base.Add(61*time.Second), time.Minute)
	assert.ElementsMatch(t, []uint64{1, 2}, expired)
	assert.Equal(t, 1, s.Len())

	// Nothing else is old enough yet
	assert.Empty(t, s.Sweep(base.Add(62*time.Second), time.Minute))
}

func TestEstimatedWait(t *testing.T) {
	s := New(100, 10) // 10 ops per second
	now := time.Now()

	for i := 0; i < 20; i++ {
		require.NoError(t, s.Enqueue(uint64(i), models.PriorityHigh, now))
	}
	for i := 20; i < 30; i++ {
		require.NoError(t, s.Enqueue(uint64(i), models.PriorityLow, now))
	}

	// A high submission waits behind the 20 high entries only
	assert.Equal(t, 2*time.Second, s.EstimatedWait(models.PriorityHigh))
	// A low submission waits behind all 30
	assert.Equal(t, 3*time.Second, s.EstimatedWait(models.PriorityLow))
	// Nothing above critical
	assert.Equal(t, time.Duration(0), s.EstimatedWait(models.PriorityCritical))
}

func TestStats(t *testing.T) {
	s := New(10, 10)
	now := time.Now()

	require.NoError(t, s.Enqueue(1, models.PriorityLow, now))
	require.NoError(t, s.Enqueue(2, models.PriorityLow, now))
	require.NoError(t, s.Enqueue(3, models.PriorityCritical, now))

	stats := s.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Depths[models.PriorityLow.String()])
	assert.Equal(t, 1, stats.Depths[models.PriorityCritical.String()])
	assert.Equal(t, 0, stats.Depths[models.PriorityHigh.String()])
}

func TestSetMaxQueueSize(t *testing.T) {
	s := New(1, 10)
	now := time.Now()

	require.NoError(t, s.Enqueue(1, models.PriorityLow, now))
	assert.ErrorIs(t, s.Enqueue(2, models.PriorityLow, now), ErrQueueFull)

	s.SetMaxQueueSize(2)
	require.NoError(t, s.Enqueue(2, models.PriorityLow, now))
}
