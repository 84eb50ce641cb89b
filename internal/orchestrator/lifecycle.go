package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"txengine/internal/identity"
	"txengine/internal/ledger"
	"txengine/internal/metrics"
	"txengine/internal/models"
)

// Cancel withdraws a queued operation and refunds its escrow in full.
// Allowed for the submitter and for admins; an operation already picked up
// for execution completes normally.
func (o *Orchestrator) Cancel(caller string, id uint64, reason string) error {
	op, ok := o.getOp(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrTransactionNotFound, id)
	}
	if caller != op.Submitter && !o.authorizer.HasCapability(caller, identity.CapabilityAdmin) {
		return fmt.Errorf("%w: %s may not cancel operation %d", ErrUnauthorized, caller, id)
	}

	if !o.transition(op, models.StateQueued, models.StateCancelled) {
		return fmt.Errorf("%w: id %d is no longer queued", ErrTransactionAlreadyExecuted, id)
	}

	o.opsMu.Lock()
	op.FailureReason = reason
	o.opsMu.Unlock()

	if err := o.ledger.Release(op.ReservationID); err != nil {
		slog.Error("Failed to release reservation for cancelled operation",
			"operation_id", id,
			"error", err,
		)
		metrics.ErrorsTotal.WithLabelValues("ledger").Inc()
	}
	o.sched.Remove(op.ID, op.Priority)

	metrics.OperationsCancelled.Inc()
	metrics.QueueDepth.WithLabelValues(op.Priority.String()).Dec()
	metrics.EscrowOutstanding.Set(float64(o.ledger.OutstandingReservations()))

	slog.Info("Operation cancelled",
		"operation_id", id,
		"caller", caller,
		"reason", reason,
	)
	o.persistTerminal(op, nil)
	return nil
}

// Cleanup sweeps the queues for operations older than the queue timeout,
// expires them with a full refund, and prunes terminal records past the
// retention window. Intended to run on a fixed interval.
func (o *Orchestrator) Cleanup() int {
	cfg := o.config()
	now := o.now()

	swept := o.sched.Sweep(now, cfg.QueueTimeout)
	expired := 0
	for _, id := range swept {
		op, ok := o.getOp(id)
		if !ok {
			continue
		}
		// Sweep already removed the entry from its queue
		if o.expire(op, false) {
			expired++
		}
	}

	if cfg.RetentionWindow > 0 {
		o.pruneTerminal(cfg, now)
	}
	return expired
}

// expire moves a queued operation to Expired and refunds its escrow.
// Returns false if the operation won a race to some other terminal state.
func (o *Orchestrator) expire(op *models.Operation, inQueue bool) bool {
	if !o.transition(op, models.StateQueued, models.StateExpired) {
		return false
	}
	if inQueue {
		o.sched.Remove(op.ID, op.Priority)
	}

	if err := o.ledger.Release(op.ReservationID); err != nil {
		slog.Error("Failed to release reservation for expired operation",
			"operation_id", op.ID,
			"error", err,
		)
		metrics.ErrorsTotal.WithLabelValues("ledger").Inc()
	}

	metrics.OperationsExpired.Inc()
	metrics.QueueDepth.WithLabelValues(op.Priority.String()).Dec()
	metrics.EscrowOutstanding.Set(float64(o.ledger.OutstandingReservations()))

	slog.Debug("Operation expired",
		"operation_id", op.ID,
		"submitted_at", op.SubmittedAt,
	)
	o.persistTerminal(op, nil)
	return true
}

// pruneTerminal drops terminal operations past the retention window from the
// in-memory table. The audit trail keeps the durable record.
func (o *Orchestrator) pruneTerminal(cfg Config, now time.Time) {
	o.opsMu.Lock()
	defer o.opsMu.Unlock()
	for id, op := range o.ops {
		if op.State.Terminal() && now.Sub(op.SubmittedAt) > cfg.RetentionWindow {
			delete(o.ops, id)
		}
	}
}

// persistTerminal writes the operation's terminal record and settlement
// breakdown to the audit trail, retrying transient storage failures.
// Persistence failures never fail the operation itself.
func (o *Orchestrator) persistTerminal(op *models.Operation, paid []ledger.Paid) {
	if o.repository == nil {
		return
	}

	o.opsMu.RLock()
	audit := &models.OperationAudit{
		OperationID:    op.ID,
		Submitter:      op.Submitter,
		Network:        op.Network,
		Target:         op.Target,
		Priority:       op.Priority.String(),
		FinalState:     string(op.State),
		FailureReason:  op.FailureReason,
		ReservedAmount: op.ReservedAmount,
		SettledCost:    op.SettledCost,
		ResourceLimit:  op.ResourceLimit,
		ResourceUsed:   op.ResourceUsed,
		Denom:          op.Denom,
		SubmittedAt:    op.SubmittedAt,
	}
	o.opsMu.RUnlock()
	audit.FinalizedAt = o.now()

	var settlements []models.SettlementRecord
	for _, p := range paid {
		settlements = append(settlements, models.SettlementRecord{
			OperationID: op.ID,
			Payee:       p.Payee,
			Role:        p.Role,
			AmountPaid:  p.Amount,
			Bps:         p.Bps,
			Denom:       audit.Denom,
			SettledAt:   audit.FinalizedAt,
		})
	}

	ctx := context.Background()
	err := o.persist.Execute(ctx, func() error {
		if err := o.repository.SaveOperationAudit(ctx, audit); err != nil {
			return err
		}
		return o.repository.SaveSettlements(ctx, settlements)
	})
	if err != nil {
		slog.Error("Failed to persist audit record",
			"operation_id", op.ID,
			"error", err,
		)
		metrics.ErrorsTotal.WithLabelValues("storage").Inc()
	}
}
