package orchestrator

import (
	"fmt"
	"log/slog"
	"time"

	"txengine/internal/admission"
	"txengine/internal/identity"
	"txengine/internal/models"
)

// requireAdmin gates every administrative entry point
func (o *Orchestrator) requireAdmin(caller string) error {
	if !o.authorizer.HasCapability(caller, identity.CapabilityAdmin) {
		return fmt.Errorf("%w: %s is not an admin", ErrUnauthorized, caller)
	}
	return nil
}

// UpdateNetworkLimits replaces a tenant network's rate configuration.
// Effective for subsequent admissions only; queued operations keep running.
func (o *Orchestrator) UpdateNetworkLimits(caller string, limits admission.NetworkLimits) error {
	if err := o.requireAdmin(caller); err != nil {
		return err
	}
	o.control.UpdateNetworkLimits(limits)
	return nil
}

// UpdateGlobalLimits replaces the cross-network admission caps
func (o *Orchestrator) UpdateGlobalLimits(caller string, global admission.GlobalLimits) error {
	if err := o.requireAdmin(caller); err != nil {
		return err
	}
	o.control.UpdateGlobalLimits(global)
	return nil
}

// UpdateFeePercentages replaces the settlement split for future settlements
func (o *Orchestrator) UpdateFeePercentages(caller string, fees FeeConfig) error {
	if err := o.requireAdmin(caller); err != nil {
		return err
	}
	if err := fees.Validate(); err != nil {
		return err
	}

	o.cfgMu.Lock()
	o.cfg.Fees = fees
	o.cfgMu.Unlock()

	slog.Info("Fee percentages updated",
		"orchestrator_bps", fees.OrchestratorFeeBps,
		"platform_bps", fees.PlatformFeeBps,
		"provider_bps", fees.ProviderFeeBps,
	)
	return nil
}

// UpdateQueueConfig replaces queue capacity and expiry timeout for
// subsequent operations; already-queued operations keep their old deadline
// relative to the new timeout at the next sweep
func (o *Orchestrator) UpdateQueueConfig(caller string, maxQueueSize int, timeout time.Duration) error {
	if err := o.requireAdmin(caller); err != nil {
		return err
	}
	if maxQueueSize <= 0 || timeout <= 0 {
		return fmt.Errorf("%w: queue size and timeout must be positive", ErrInvalidInput)
	}

	o.cfgMu.Lock()
	o.cfg.MaxQueueSize = maxQueueSize
	o.cfg.QueueTimeout = timeout
	o.cfgMu.Unlock()
	o.sched.SetMaxQueueSize(maxQueueSize)

	slog.Info("Queue configuration updated",
		"max_queue_size", maxQueueSize,
		"timeout", timeout,
	)
	return nil
}

// UpdateExecutionThrottle replaces the global execution throttle and batch cap
func (o *Orchestrator) UpdateExecutionThrottle(caller string, minInterval time.Duration, maxBatchSize int) error {
	if err := o.requireAdmin(caller); err != nil {
		return err
	}
	if minInterval < 0 || maxBatchSize <= 0 {
		return fmt.Errorf("%w: invalid throttle configuration", ErrInvalidInput)
	}

	o.cfgMu.Lock()
	o.cfg.MinExecutionInterval = minInterval
	o.cfg.MaxBatchSize = maxBatchSize
	o.cfgMu.Unlock()

	o.throttleMu.Lock()
	o.throttle = newThrottle(minInterval)
	o.throttleMu.Unlock()

	slog.Info("Execution throttle updated",
		"min_interval", minInterval,
		"max_batch_size", maxBatchSize,
	)
	return nil
}

// ResetAccountRate zeroes an account's admission counters on every network
func (o *Orchestrator) ResetAccountRate(caller, account string) error {
	if err := o.requireAdmin(caller); err != nil {
		return err
	}
	o.control.ResetAccount(account)
	return nil
}

// ResumeNetwork lifts an admission halt placed by the circuit breaker
func (o *Orchestrator) ResumeNetwork(caller, network string) error {
	if err := o.requireAdmin(caller); err != nil {
		return err
	}
	o.control.Resume(network)
	return nil
}

// GetOperation returns a copy of the operation record
func (o *Orchestrator) GetOperation(id uint64) (models.Operation, bool) {
	op, ok := o.getOp(id)
	if !ok {
		return models.Operation{}, false
	}
	o.opsMu.RLock()
	defer o.opsMu.RUnlock()
	return *op, true
}

// GetQueueStats returns the queue depth per priority
func (o *Orchestrator) GetQueueStats() models.QueueStats {
	return o.sched.Stats()
}

// GetAccountRateState returns the account's admission counters on a network
func (o *Orchestrator) GetAccountRateState(account, network string) models.RateWindowSnapshot {
	return o.control.Snapshot(account, network, o.now())
}

// GetPerformanceMetrics returns the running execution metrics
func (o *Orchestrator) GetPerformanceMetrics() models.PerformanceSnapshot {
	return o.perf.snapshot()
}

// EstimatedWait returns a coarse SLA hint for a new submission at the given
// priority
func (o *Orchestrator) EstimatedWait(priority models.Priority) time.Duration {
	return o.sched.EstimatedWait(priority)
}
