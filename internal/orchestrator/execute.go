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

// allowKickoff consumes one slot of the global execution throttle.
// It gates execution kickoff only; admission is never blocked by it.
func (o *Orchestrator) allowKickoff() bool {
	o.throttleMu.Lock()
	defer o.throttleMu.Unlock()
	return o.throttle.Allow()
}

// distribution builds the settlement split. The provider is always the last
// payee, so it absorbs whatever the bps shares leave of the settled cost.
func (o *Orchestrator) distribution() []ledger.Payout {
	fees := o.config().Fees

	var d []ledger.Payout
	if fees.OrchestratorFeeBps > 0 {
		d = append(d, ledger.Payout{Payee: fees.OrchestratorAccount, Role: "orchestrator", Bps: fees.OrchestratorFeeBps})
	}
	d = append(d, ledger.Payout{Payee: fees.PlatformAccount, Role: "platform", Bps: fees.PlatformFeeBps})
	d = append(d, ledger.Payout{Payee: fees.ProviderAccount, Role: "provider", Bps: fees.ProviderFeeBps})
	return d
}

// Execute runs a single queued operation. The caller must hold the executor
// capability.
func (o *Orchestrator) Execute(ctx context.Context, caller string, id uint64) error {
	if !o.authorizer.HasCapability(caller, identity.CapabilityExecute) {
		return fmt.Errorf("%w: %s may not execute", ErrUnauthorized, caller)
	}
	if !o.allowKickoff() {
		metrics.ThrottleRejections.Inc()
		return ErrExecutionIntervalTooShort
	}

	out, err := o.executeByID(ctx, id, true)
	if out != nil {
		o.perf.apply([]outcome{*out})
	}
	return err
}

// ExecuteBatch runs up to MaxBatchSize queued operations, silently skipping
// ids that are not eligible. Metrics are folded in once for the whole batch
// rather than per operation. Returns the ids that were actually attempted.
func (o *Orchestrator) ExecuteBatch(ctx context.Context, caller string, ids []uint64) ([]uint64, error) {
	if !o.authorizer.HasCapability(caller, identity.CapabilityExecute) {
		return nil, fmt.Errorf("%w: %s may not execute", ErrUnauthorized, caller)
	}
	cfg := o.config()
	if len(ids) > cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", ErrInvalidInput, len(ids), cfg.MaxBatchSize)
	}
	if !o.allowKickoff() {
		metrics.ThrottleRejections.Inc()
		return nil, ErrExecutionIntervalTooShort
	}

	var (
		attempted []uint64
		outcomes  []outcome
	)
	for _, id := range ids {
		out, err := o.executeByID(ctx, id, true)
		if out != nil {
			outcomes = append(outcomes, *out)
			attempted = append(attempted, id)
			continue
		}
		// Not eligible (unknown, already terminal, expired in the
		// meantime): skip and keep going
		slog.Debug("Batch execution skipping operation",
			"operation_id", id,
			"reason", err,
		)
	}

	o.perf.apply(outcomes)
	metrics.BatchSize.Observe(float64(len(attempted)))
	return attempted, nil
}

// ExecuteNext pops the highest-priority queued operation and executes it
func (o *Orchestrator) ExecuteNext(ctx context.Context, caller string) (uint64, error) {
	if !o.authorizer.HasCapability(caller, identity.CapabilityExecute) {
		return 0, fmt.Errorf("%w: %s may not execute", ErrUnauthorized, caller)
	}
	if !o.allowKickoff() {
		metrics.ThrottleRejections.Inc()
		return 0, ErrExecutionIntervalTooShort
	}

	id, ok := o.sched.DequeueHighest(func(id uint64) bool {
		op, found := o.getOp(id)
		if !found {
			return false
		}
		o.opsMu.RLock()
		defer o.opsMu.RUnlock()
		return op.State == models.StateQueued
	})
	if !ok {
		return 0, ErrNoOperationsAvailable
	}

	out, err := o.executeByID(ctx, id, false)
	if out != nil {
		o.perf.apply([]outcome{*out})
	}
	return id, err
}

// executeByID drives one operation through execution and settlement.
// inQueue says whether the id still sits in its priority queue and must be
// removed; ExecuteNext has already dequeued it.
//
// A nil outcome means the operation was not eligible and nothing happened.
func (o *Orchestrator) executeByID(ctx context.Context, id uint64, inQueue bool) (*outcome, error) {
	op, ok := o.getOp(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrTransactionNotFound, id)
	}

	cfg := o.config()
	now := o.now()

	// Expired but not yet swept: expire it here rather than execute stale work
	o.opsMu.RLock()
	state := op.State
	o.opsMu.RUnlock()
	if state == models.StateQueued && now.Sub(op.SubmittedAt) > cfg.QueueTimeout {
		o.expire(op, inQueue)
		return nil, fmt.Errorf("%w: id %d queued for %s", ErrTransactionExpired, id, now.Sub(op.SubmittedAt))
	}

	// At-most-once: only the caller that wins this transition invokes the
	// executor, however many times the id was dequeued
	if !o.transition(op, models.StateQueued, models.StateExecuting) {
		return nil, fmt.Errorf("%w: id %d is %s", ErrTransactionAlreadyExecuted, id, state)
	}

	if inQueue {
		o.sched.Remove(op.ID, op.Priority)
	}
	metrics.QueueDepth.WithLabelValues(op.Priority.String()).Dec()

	execCtx := ctx
	if cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, cfg.ExecutionTimeout)
		defer cancel()
	}

	started := o.now()
	result := o.executor.Execute(execCtx, op.Target, op.Payload, op.ResourceLimit)
	elapsed := o.now().Sub(started)
	metrics.ExecutionDuration.Observe(elapsed.Seconds())

	if execCtx.Err() != nil && result.Success {
		// Executor overran its deadline; treat as failure and refund
		result = Result{Success: false, Error: "execution timeout exceeded"}
	}

	if !result.Success {
		o.failOp(op, result.Error)
		return &outcome{success: false, duration: elapsed},
			fmt.Errorf("%w: %s", ErrExecutorFailure, result.Error)
	}

	paid, err := o.settle(op, result, started)
	if err != nil {
		return &outcome{success: false, duration: elapsed}, err
	}

	slog.Info("Operation executed",
		"operation_id", op.ID,
		"target", op.Target,
		"resource_used", op.ResourceUsed,
		"settled_cost", op.SettledCost,
		"duration", elapsed,
	)
	metrics.ExecutionsTotal.WithLabelValues("executed").Inc()
	for _, p := range paid {
		metrics.FeesDistributed.WithLabelValues(p.Role).Add(float64(p.Amount))
	}
	metrics.EscrowOutstanding.Set(float64(o.ledger.OutstandingReservations()))

	return &outcome{success: true, resource: op.ResourceUsed, duration: elapsed}, nil
}

// settle resolves the operation's escrow: the actual cost is bounded by the
// reservation and split across the fee payees, the rest refunds to the
// submitter
func (o *Orchestrator) settle(op *models.Operation, result Result, executedAt time.Time) ([]ledger.Paid, error) {
	used := result.ResourceUsed
	if used > op.ResourceLimit {
		used = op.ResourceLimit
	}
	cost := op.MaxUnitPrice * int64(used)

	paid, err := o.ledger.Settle(op.ReservationID, cost, o.distribution())
	if err != nil {
		// Settlement must never fail for a well-formed reservation. If it
		// does, the escrow bookkeeping can no longer be trusted for this
		// network: stop admitting, refund, and surface the failure.
		o.control.Halt(op.Network, fmt.Sprintf("settlement failed for operation %d: %v", op.ID, err))
		metrics.ErrorsTotal.WithLabelValues("ledger").Inc()
		o.failOp(op, fmt.Sprintf("settlement failed: %v", err))
		return nil, fmt.Errorf("settlement failed for operation %d: %w", op.ID, err)
	}

	o.opsMu.Lock()
	op.State = models.StateExecuted
	op.ExecutedAt = executedAt
	op.ResourceUsed = used
	op.SettledCost = cost
	o.opsMu.Unlock()

	o.persistTerminal(op, paid)
	return paid, nil
}

// failOp refunds the full reservation and marks the operation failed
func (o *Orchestrator) failOp(op *models.Operation, reason string) {
	if err := o.ledger.Release(op.ReservationID); err != nil {
		slog.Error("Failed to release reservation for failed operation",
			"operation_id", op.ID,
			"error", err,
		)
		metrics.ErrorsTotal.WithLabelValues("ledger").Inc()
	}

	o.opsMu.Lock()
	op.State = models.StateFailed
	op.FailureReason = reason
	o.opsMu.Unlock()

	slog.Warn("Operation failed",
		"operation_id", op.ID,
		"target", op.Target,
		"reason", reason,
	)
	metrics.ExecutionsTotal.WithLabelValues("failed").Inc()
	metrics.EscrowOutstanding.Set(float64(o.ledger.OutstandingReservations()))

	o.persistTerminal(op, nil)
}
