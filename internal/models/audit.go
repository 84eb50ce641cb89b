package models

import "time"

// OperationAudit is the persisted record of a terminal state transition.
// One row per operation; re-saving the same operation id is a no-op upsert.
type OperationAudit struct {
	OperationID    uint64    `json:"operation_id"`
	Submitter      string    `json:"submitter"`
	Network        string    `json:"network"`
	Target         string    `json:"target"`
	Priority       string    `json:"priority"`
	FinalState     string    `json:"final_state"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	ReservedAmount int64     `json:"reserved_amount"`
	SettledCost    int64     `json:"settled_cost"`
	ResourceLimit  uint64    `json:"resource_limit"`
	ResourceUsed   uint64    `json:"resource_used"`
	Denom          string    `json:"denom"`
	SubmittedAt    time.Time `json:"submitted_at"`
	FinalizedAt    time.Time `json:"finalized_at"`
}

// SettlementRecord is the persisted breakdown of one settlement's fee splits
type SettlementRecord struct {
	OperationID uint64    `json:"operation_id"`
	Payee       string    `json:"payee"`
	Role        string    `json:"role"`
	AmountPaid  int64     `json:"amount_paid"`
	Bps         uint32    `json:"bps"`
	Denom       string    `json:"denom"`
	SettledAt   time.Time `json:"settled_at"`
}
