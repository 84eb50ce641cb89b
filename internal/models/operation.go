package models

import "time"

// Priority is the scheduling class of an operation. It orders execution,
// it never affects admission eligibility.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
	PriorityCritical

	// NumPriorities is the number of scheduling classes.
	NumPriorities = 5
)

// String returns the human-readable priority name
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the five defined priorities
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// State is the lifecycle state of an operation. All transitions out of
// StateQueued are terminal.
type State string

const (
	StateQueued    State = "queued"
	StateExecuting State = "executing"
	StateExecuted  State = "executed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateExpired   State = "expired"
)

// Terminal reports whether the state admits no further transitions
func (s State) Terminal() bool {
	switch s {
	case StateExecuted, StateFailed, StateCancelled, StateExpired:
		return true
	default:
		return false
	}
}

// Operation is a caller-submitted unit of work admitted into the engine
type Operation struct {
	// Identification
	ID        uint64 `json:"id"`
	Submitter string `json:"submitter"`
	Network   string `json:"network"`

	// Call description
	Target        string   `json:"target"`
	Payload       []byte   `json:"payload,omitempty"`
	ResourceLimit uint64   `json:"resource_limit"`
	MaxUnitPrice  int64    `json:"max_unit_price"`
	Denom         string   `json:"denom"`
	Priority      Priority `json:"priority"`

	// Escrow
	ReservedAmount int64  `json:"reserved_amount"`
	ReservationID  string `json:"reservation_id,omitempty"`

	// Lifecycle
	State         State     `json:"state"`
	FailureReason string    `json:"failure_reason,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
	ExecutedAt    time.Time `json:"executed_at,omitempty"`

	// Outcome
	ResourceUsed uint64 `json:"resource_used,omitempty"`
	SettledCost  int64  `json:"settled_cost,omitempty"`
}

// QueueStats is a point-in-time count of queued operations per priority
type QueueStats struct {
	Depths map[string]int `json:"depths"`
	Total  int            `json:"total"`
}

// PerformanceSnapshot is the running execution metrics exposed read-only
type PerformanceSnapshot struct {
	TotalProcessed       uint64        `json:"total_processed"`
	TotalSucceeded       uint64        `json:"total_succeeded"`
	TotalResourceUsed    uint64        `json:"total_resource_used"`
	AverageExecutionTime time.Duration `json:"average_execution_time_ns"`
	SuccessRateBps       uint32        `json:"success_rate_bps"`
}

// RateWindowSnapshot is a read-only view of one account's admission counters
// on a single tenant network
type RateWindowSnapshot struct {
	Account           string    `json:"account"`
	Network           string    `json:"network"`
	OpsSecond         uint64    `json:"ops_second"`
	OpsMinute         uint64    `json:"ops_minute"`
	OpsHour           uint64    `json:"ops_hour"`
	ResourceSecond    uint64    `json:"resource_second"`
	ResourceMinute    uint64    `json:"resource_minute"`
	ResourceHour      uint64    `json:"resource_hour"`
	LastOperationTime time.Time `json:"last_operation_time"`
}
