package admission

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
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrUnknownNetwork    = errors.New("unknown network")
	ErrNetworkInactive   = errors.New("network is inactive")
	ErrAdmissionHalted   = errors.New("admission halted for network")
)

// windowState holds the fixed-window counters for one (account, network)
// pair. Windows are reset lazily on the next check that crosses a boundary,
// never by a background timer.
type windowState struct {
	mu sync.Mutex
	counters
}

// counters is the copyable window-counter block of a windowState
type counters struct {
	opsSecond uint64
	opsMinute uint64
	opsHour   uint64

	resourceSecond uint64
	resourceMinute uint64
	resourceHour   uint64

	lastOperation time.Time
}

// rollWindows zeroes every window whose duration has fully elapsed since the
// last admitted operation. Caller holds the owning windowState lock.
func (w *counters) rollWindows(now time.Time) {
	if w.lastOperation.IsZero() {
		return
	}
	elapsed := now.Sub(w.lastOperation)
	if elapsed > time.Second {
		w.opsSecond = 0
		w.resourceSecond = 0
	}
	if elapsed > time.Minute {
		w.opsMinute = 0
		w.resourceMinute = 0
	}
	if elapsed > time.Hour {
		w.opsHour = 0
		w.resourceHour = 0
	}
}

// withinLimits verifies every window against the effective limits.
// Caller holds the owning windowState lock and must have rolled the windows first.
func (w *counters) withinLimits(limits NetworkLimits, global GlobalLimits, resource uint64) bool {
	m := limits.RateMultiplier

	checks := []struct {
		ops, maxOps   uint64
		used, maxUsed uint64
	}{
		{w.opsSecond, stricter(scaled(limits.MaxOpsPerSecond, m), global.MaxOpsPerSecond),
			w.resourceSecond, stricter(scaled(limits.MaxResourcePerSecond, m), global.MaxResourcePerSecond)},
		{w.opsMinute, stricter(scaled(limits.MaxOpsPerMinute, m), global.MaxOpsPerMinute),
			w.resourceMinute, stricter(scaled(limits.MaxResourcePerMinute, m), global.MaxResourcePerMinute)},
		{w.opsHour, stricter(scaled(limits.MaxOpsPerHour, m), global.MaxOpsPerHour),
			w.resourceHour, stricter(scaled(limits.MaxResourcePerHour, m), global.MaxResourcePerHour)},
	}

	for _, c := range checks {
		if c.ops >= c.maxOps {
			return false
		}
		if c.used+resource > c.maxUsed {
			return false
		}
	}
	return true
}

// record counts one admitted operation in every window.
func (w *counters) record(resource uint64, now time.Time) {
	w.opsSecond++
	w.opsMinute++
	w.opsHour++
	w.resourceSecond += resource
	w.resourceMinute += resource
	w.resourceHour += resource
	w.lastOperation = now
}

// Controller makes the accept/reject decision for new operations based on
// per-(account, network) fixed-window counters.
type Controller struct {
	mu       sync.RWMutex
	networks map[string]NetworkLimits
	global   GlobalLimits
	halted   map[string]string // network -> reason

	stateMu sync.Mutex
	state   map[string]*windowState // key: account + "|" + network
}

// NewController seeds the controller with the given network configurations
func NewController(networks []NetworkLimits, global GlobalLimits) *Controller {
	c := &Controller{
		networks: make(map[string]NetworkLimits, len(networks)),
		global:   global,
		halted:   make(map[string]string),
		state:    make(map[string]*windowState),
	}
	for _, n := range networks {
		c.networks[n.Network] = n
	}
	return c
}

func stateKey(account, network string) string {
	return account + "|" + network
}

// getState returns the window state for the pair, creating it if needed
func (c *Controller) getState(account, network string) *windowState {
	key := stateKey(account, network)
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	w, ok := c.state[key]
	if !ok {
		w = &windowState{}
		c.state[key] = w
	}
	return w
}

// networkFor resolves the network configuration or the reason it cannot admit
func (c *Controller) networkFor(network string) (NetworkLimits, GlobalLimits, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	limits, ok := c.networks[network]
	if !ok {
		return NetworkLimits{}, GlobalLimits{}, fmt.Errorf("%w: %s", ErrUnknownNetwork, network)
	}
	if !limits.Active {
		return NetworkLimits{}, GlobalLimits{}, fmt.Errorf("%w: %s", ErrNetworkInactive, network)
	}
	if reason, halted := c.halted[network]; halted {
		return NetworkLimits{}, GlobalLimits{}, fmt.Errorf("%w: %s (%s)", ErrAdmissionHalted, network, reason)
	}
	return limits, c.global, nil
}

// CheckNetwork reports whether the network exists, is active and is not
// halted, without consulting any counters
func (c *Controller) CheckNetwork(network string) error {
	_, _, err := c.networkFor(network)
	return err
}

// CanAdmit reports whether an operation of the given resource limit would be
// admitted right now. Read-only: counters are not mutated, not even the lazy
// window reset.
func (c *Controller) CanAdmit(account, network string, resourceLimit uint64, now time.Time) bool {
	limits, global, err := c.networkFor(network)
	if err != nil {
		return false
	}

	w := c.getState(account, network)
	w.mu.Lock()
	defer w.mu.Unlock()

	// Evaluate against a rolled copy so the stored counters stay untouched
	rolled := w.counters
	rolled.rollWindows(now)
	return rolled.withinLimits(limits, global, resourceLimit)
}

// Admit performs the admission check and, on success, counts the operation in
// the account's windows. Check and increment happen in one critical section
// so two concurrent submissions can never both pass a check meant to reject
// one of them.
func (c *Controller) Admit(account, network string, resourceLimit uint64, now time.Time) error {
	limits, global, err := c.networkFor(network)
	if err != nil {
		return err
	}

	w := c.getState(account, network)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rollWindows(now)
	if !w.withinLimits(limits, global, resourceLimit) {
		return fmt.Errorf("%w: account %s on %s", ErrRateLimitExceeded, account, network)
	}
	w.record(resourceLimit, now)
	return nil
}

// ResetAccount zeroes the account's counters on every network. Admin
// remediation only.
func (c *Controller) ResetAccount(account string) {
	prefix := account + "|"
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	for key, w := range c.state {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			w.mu.Lock()
			w.counters = counters{}
			w.mu.Unlock()
		}
	}
	slog.Info("Admission: account counters reset", "account", account)
}

// UpdateNetworkLimits replaces or adds a network configuration. Takes effect
// for subsequent admissions only.
func (c *Controller) UpdateNetworkLimits(limits NetworkLimits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.networks[limits.Network] = limits
	slog.Info("Admission: network limits updated",
		"network", limits.Network,
		"ops_per_second", limits.MaxOpsPerSecond,
		"active", limits.Active,
	)
}

// UpdateGlobalLimits replaces the cross-network caps
func (c *Controller) UpdateGlobalLimits(global GlobalLimits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = global
}

// NetworkLimitsFor returns the configuration for one network
func (c *Controller) NetworkLimitsFor(network string) (NetworkLimits, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	limits, ok := c.networks[network]
	return limits, ok
}

// Halt stops all admission on the network. Used as a circuit breaker when an
// invariant violation is detected downstream; corrupting further state is
// worse than rejecting traffic.
func (c *Controller) Halt(network, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halted[network] = reason
	slog.Error("Admission: network halted",
		"network", network,
		"reason", reason,
	)
}

// Resume lifts a halt placed by Halt
func (c *Controller) Resume(network string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.halted, network)
	slog.Info("Admission: network resumed", "network", network)
}

// Snapshot returns a read-only view of one account's counters on a network,
// with the lazy window reset applied
func (c *Controller) Snapshot(account, network string, now time.Time) models.RateWindowSnapshot {
	w := c.getState(account, network)
	w.mu.Lock()
	defer w.mu.Unlock()

	rolled := w.counters
	rolled.rollWindows(now)
	return models.RateWindowSnapshot{
		Account:           account,
		Network:           network,
		OpsSecond:         rolled.opsSecond,
		OpsMinute:         rolled.opsMinute,
		OpsHour:           rolled.opsHour,
		ResourceSecond:    rolled.resourceSecond,
		ResourceMinute:    rolled.resourceMinute,
		ResourceHour:      rolled.resourceHour,
		LastOperationTime: rolled.lastOperation,
	}
}
