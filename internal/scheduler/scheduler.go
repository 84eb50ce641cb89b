package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"txengine/internal/models"
)

// Sentinel errors for comparison with errors.Is
var (
	ErrQueueFull = errors.New("queue is full")
)

// entry is one queued operation id with its enqueue timestamp
type entry struct {
	id         uint64
	enqueuedAt time.Time
}

// Scheduler holds five priority FIFOs of operation ids, critical highest.
// It knows nothing about balances or rate limits; it orders ids by priority
// and age only.
type Scheduler struct {
	mu           sync.Mutex
	queues       [models.NumPriorities][]entry
	maxQueueSize int

	// throughput is the coarse executions-per-second estimate used by
	// EstimatedWait. Advisory only.
	throughput float64
}

// New creates a scheduler whose per-priority queues hold at most maxQueueSize
// entries each
func New(maxQueueSize int, throughputPerSecond float64) *Scheduler {
	if throughputPerSecond <= 0 {
		throughputPerSecond = 1
	}
	return &Scheduler{
		maxQueueSize: maxQueueSize,
		throughput:   throughputPerSecond,
	}
}

// Enqueue appends the id to its priority queue
func (s *Scheduler) Enqueue(id uint64, priority models.Priority, now time.Time) error {
	if !priority.Valid() {
		return fmt.Errorf("invalid priority %d", priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxQueueSize > 0 && len(s.queues[priority]) >= s.maxQueueSize {
		return fmt.Errorf("%w: %s queue at capacity %d", ErrQueueFull, priority, s.maxQueueSize)
	}
	s.queues[priority] = append(s.queues[priority], entry{id: id, enqueuedAt: now})
	return nil
}

// DequeueHighest pops the oldest id from the highest non-empty priority
// queue. Entries whose operation is no longer live (cancelled, expired or
// executed through another path) are discarded during the scan instead of
// being tracked with back-pointers.
func (s *Scheduler) DequeueHighest(isLive func(id uint64) bool) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for p := models.PriorityCritical; p >= models.PriorityLow; p-- {
		q := s.queues[p]
		for len(q) > 0 {
			head := q[0]
			q = q[1:]
			if isLive == nil || isLive(head.id) {
				s.queues[p] = q
				return head.id, true
			}
			slog.Debug("Scheduler: discarding stale entry",
				"operation_id", head.id,
				"priority", p.String(),
			)
		}
		s.queues[p] = q
	}
	return 0, false
}

// Remove deletes the id from its priority queue. Linear search with
// swap-remove; queue depth is bounded by maxQueueSize so O(n) is fine here.
func (s *Scheduler) Remove(id uint64, priority models.Priority) bool {
	if !priority.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[priority]
	for i := range q {
		if q[i].id == id {
			last := len(q) - 1
			q[i] = q[last]
			s.queues[priority] = q[:last]
			return true
		}
	}
	return false
}

// Sweep removes every entry older than timeout from all queues and returns
// the removed ids. Intended to run on a fixed interval, not per operation.
func (s *Scheduler) Sweep(now time.Time, timeout time.Duration) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []uint64
	for p := range s.queues {
		kept := s.queues[p][:0]
		for _, e := range s.queues[p] {
			if now.Sub(e.enqueuedAt) > timeout {
				expired = append(expired, e.id)
			} else {
				kept = append(kept, e)
			}
		}
		s.queues[p] = kept
	}

	if len(expired) > 0 {
		slog.Info("Scheduler: swept expired operations",
			"count", len(expired),
			"timeout", timeout,
		)
	}
	return expired
}

// EstimatedWait returns a coarse SLA hint for a new operation at the given
// priority: everything at this priority or above, divided by the throughput
// estimate. Advisory only, never a guarantee.
func (s *Scheduler) EstimatedWait(priority models.Priority) time.Duration {
	if !priority.Valid() {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ahead := 0
	for p := priority; p < models.NumPriorities; p++ {
		ahead += len(s.queues[p])
	}
	return time.Duration(float64(ahead) / s.throughput * float64(time.Second))
}

// SetMaxQueueSize updates the per-priority capacity for subsequent enqueues
func (s *Scheduler) SetMaxQueueSize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxQueueSize = size
}

// SetThroughputEstimate updates the executions-per-second estimate
func (s *Scheduler) SetThroughputEstimate(perSecond float64) {
	if perSecond <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throughput = perSecond
}

// Len returns the total number of queued entries
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for p := range s.queues {
		total += len(s.queues[p])
	}
	return total
}

// Stats returns the queue depth per priority
func (s *Scheduler) Stats() models.QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.QueueStats{Depths: make(map[string]int, models.NumPriorities)}
	for p := range s.queues {
		depth := len(s.queues[p])
		stats.Depths[models.Priority(p).String()] = depth
		stats.Total += depth
	}
	return stats
}
