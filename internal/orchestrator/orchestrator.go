package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"txengine/internal/admission"
	"txengine/internal/identity"
	"txengine/internal/ledger"
	"txengine/internal/metrics"
	"txengine/internal/models"
	"txengine/internal/retry"
	"txengine/internal/scheduler"
	"txengine/internal/storage"

	"golang.org/x/time/rate"
)

// Sentinel errors for comparison with errors.Is
var (
	ErrInvalidInput               = errors.New("invalid input")
	ErrUnauthorized               = errors.New("caller lacks required capability")
	ErrTransactionNotFound        = errors.New("transaction not found")
	ErrTransactionAlreadyExecuted = errors.New("transaction already executed")
	ErrTransactionExpired         = errors.New("transaction expired")
	ErrNoOperationsAvailable      = errors.New("no operations available")
	ErrExecutionIntervalTooShort  = errors.New("minimum execution interval not elapsed")
	ErrExecutorFailure            = errors.New("executor failure")
)

// FeeConfig is the settlement split applied to every executed operation.
// The orchestrator share is deducted first, then the platform share; the
// provider receives whatever the bps splits leave of the settled cost.
type FeeConfig struct {
	OrchestratorFeeBps uint32
	PlatformFeeBps     uint32
	ProviderFeeBps     uint32

	OrchestratorAccount string
	PlatformAccount     string
	ProviderAccount     string
}

// Validate checks the split stays within 10000 bps and names its payees
func (f FeeConfig) Validate() error {
	total := f.OrchestratorFeeBps + f.PlatformFeeBps + f.ProviderFeeBps
	if total > 10000 {
		return fmt.Errorf("%w: fee shares sum to %d bps, max 10000", ErrInvalidInput, total)
	}
	if f.PlatformAccount == "" || f.ProviderAccount == "" {
		return fmt.Errorf("%w: platform and provider fee accounts are required", ErrInvalidInput)
	}
	if f.OrchestratorFeeBps > 0 && f.OrchestratorAccount == "" {
		return fmt.Errorf("%w: orchestrator fee configured without an account", ErrInvalidInput)
	}
	return nil
}

// Config holds the orchestrator's tunables
type Config struct {
	Fees FeeConfig

	// Unit price bounds accepted at submission
	MinUnitPrice int64
	MaxUnitPrice int64

	// Queue configuration
	MaxQueueSize int
	QueueTimeout time.Duration

	// Execution throttle
	MinExecutionInterval time.Duration
	MaxBatchSize         int
	ExecutionTimeout     time.Duration

	// Terminal operations older than this are pruned during Cleanup.
	// Zero keeps them forever.
	RetentionWindow time.Duration

	// Coarse executions-per-second estimate feeding EstimatedWait
	ThroughputEstimate float64
}

// perfState is the running performance accounting behind
// GetPerformanceMetrics
type perfState struct {
	mu sync.Mutex

	totalProcessed    uint64
	totalSucceeded    uint64
	totalResourceUsed uint64
	avgExecution      time.Duration
}

// outcome is one execution's contribution to the performance metrics
type outcome struct {
	success  bool
	resource uint64
	duration time.Duration
}

// apply folds a batch of outcomes into the running metrics in one update.
// The success rate is recomputed from the running success count each time
// instead of being re-derived from the previous rate, so rounding error
// never compounds.
func (p *perfState) apply(outcomes []outcome) {
	if len(outcomes) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range outcomes {
		p.totalProcessed++
		n := p.totalProcessed
		p.avgExecution = time.Duration((int64(p.avgExecution)*int64(n-1) + int64(o.duration)) / int64(n))
		if o.success {
			p.totalSucceeded++
			p.totalResourceUsed += o.resource
		}
	}
}

func (p *perfState) snapshot() models.PerformanceSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := models.PerformanceSnapshot{
		TotalProcessed:       p.totalProcessed,
		TotalSucceeded:       p.totalSucceeded,
		TotalResourceUsed:    p.totalResourceUsed,
		AverageExecutionTime: p.avgExecution,
	}
	if p.totalProcessed > 0 {
		snap.SuccessRateBps = uint32(p.totalSucceeded * 10000 / p.totalProcessed)
	}
	return snap
}

// Orchestrator composes the admission controller, the priority scheduler and
// the ledger into the submit/execute lifecycle, and owns fee settlement and
// performance metrics.
type Orchestrator struct {
	cfg   Config
	cfgMu sync.RWMutex

	ledger     *ledger.Ledger
	control    *admission.Controller
	sched      *scheduler.Scheduler
	executor   Executor
	authorizer identity.Authorizer

	// Optional audit trail; nil disables persistence
	repository storage.Repository
	persist    retry.Strategy

	// Operation table. Terminal entries are pruned by Cleanup after the
	// retention window.
	opsMu  sync.RWMutex
	ops    map[uint64]*models.Operation
	nextID atomic.Uint64

	// Global execution kickoff throttle. Swapped atomically on admin
	// reconfiguration; never blocks admission.
	throttleMu sync.Mutex
	throttle   *rate.Limiter

	perf perfState

	now func() time.Time
}

// New wires the engine together. Executor and authorizer are required;
// repository may be nil.
func New(
	cfg Config,
	ldg *ledger.Ledger,
	control *admission.Controller,
	sched *scheduler.Scheduler,
	executor Executor,
	authorizer identity.Authorizer,
	repository storage.Repository,
	persist retry.Strategy,
) (*Orchestrator, error) {
	if err := cfg.Fees.Validate(); err != nil {
		return nil, err
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: executor is required", ErrInvalidInput)
	}
	if authorizer == nil {
		return nil, fmt.Errorf("%w: authorizer is required", ErrInvalidInput)
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = time.Minute
	}
	if persist == nil {
		persist = retry.NewNoRetryStrategy()
	}

	return &Orchestrator{
		cfg:        cfg,
		ledger:     ldg,
		control:    control,
		sched:      sched,
		executor:   executor,
		authorizer: authorizer,
		repository: repository,
		persist:    persist,
		ops:        make(map[uint64]*models.Operation),
		throttle:   newThrottle(cfg.MinExecutionInterval),
		now:        time.Now,
	}, nil
}

// newThrottle builds the kickoff limiter; a zero interval disables it
func newThrottle(minInterval time.Duration) *rate.Limiter {
	if minInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minInterval), 1)
}

// config returns a copy of the current configuration
func (o *Orchestrator) config() Config {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// SubmitRequest describes one operation submission
type SubmitRequest struct {
	Submitter     string
	Network       string
	Target        string
	Payload       []byte
	ResourceLimit uint64
	MaxUnitPrice  int64
	Denom         string
	Priority      models.Priority
}

// validate rejects malformed submissions before any state is touched
func (o *Orchestrator) validate(req SubmitRequest) error {
	cfg := o.config()

	if req.Target == "" {
		return fmt.Errorf("%w: target is empty", ErrInvalidInput)
	}
	if req.ResourceLimit == 0 {
		return fmt.Errorf("%w: resource limit must be positive", ErrInvalidInput)
	}
	if !req.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %d", ErrInvalidInput, req.Priority)
	}
	if req.Denom == "" {
		return fmt.Errorf("%w: denom is empty", ErrInvalidInput)
	}
	if req.MaxUnitPrice <= 0 {
		return fmt.Errorf("%w: max unit price must be positive", ErrInvalidInput)
	}
	if cfg.MinUnitPrice > 0 && req.MaxUnitPrice < cfg.MinUnitPrice {
		return fmt.Errorf("%w: unit price %d below minimum %d", ErrInvalidInput, req.MaxUnitPrice, cfg.MinUnitPrice)
	}
	if cfg.MaxUnitPrice > 0 && req.MaxUnitPrice > cfg.MaxUnitPrice {
		return fmt.Errorf("%w: unit price %d above maximum %d", ErrInvalidInput, req.MaxUnitPrice, cfg.MaxUnitPrice)
	}
	if !o.authorizer.HasCapability(req.Submitter, identity.CapabilitySubmit) {
		return fmt.Errorf("%w: %s may not submit", ErrUnauthorized, req.Submitter)
	}
	return nil
}

// Submit admits, escrows and enqueues a new operation, returning its id.
// On any rejection nothing is left behind: the admission pre-check runs
// before funds move, and the authoritative check-and-count runs with the
// escrow already held so a failure releases it again.
func (o *Orchestrator) Submit(req SubmitRequest) (uint64, error) {
	if err := o.validate(req); err != nil {
		metrics.AdmissionRejections.WithLabelValues(req.Network, "invalid_input").Inc()
		return 0, err
	}

	now := o.now()

	if err := o.control.CheckNetwork(req.Network); err != nil {
		metrics.AdmissionRejections.WithLabelValues(req.Network, "network_unavailable").Inc()
		return 0, err
	}

	// Read-only admission check keeps the ledger untouched in the common
	// rejected case; the authoritative check-and-count runs again below
	// once the escrow is held.
	if !o.control.CanAdmit(req.Submitter, req.Network, req.ResourceLimit, now) {
		metrics.AdmissionRejections.WithLabelValues(req.Network, "rate_limited").Inc()
		return 0, fmt.Errorf("%w: account %s on %s", admission.ErrRateLimitExceeded, req.Submitter, req.Network)
	}

	reserveAmount := req.MaxUnitPrice * int64(req.ResourceLimit)
	reservationID, err := o.ledger.Reserve(req.Submitter, req.Denom, reserveAmount)
	if err != nil {
		metrics.AdmissionRejections.WithLabelValues(req.Network, "insufficient_balance").Inc()
		return 0, err
	}

	// Authoritative check-and-count. Another submission may have consumed
	// the remaining window capacity since the read-only check; rejecting
	// here rolls the escrow back so no state is left behind.
	if err := o.control.Admit(req.Submitter, req.Network, req.ResourceLimit, now); err != nil {
		if relErr := o.ledger.Release(reservationID); relErr != nil {
			slog.Error("Failed to release reservation after admission rejection",
				"submitter", req.Submitter,
				"error", relErr,
			)
		}
		metrics.AdmissionRejections.WithLabelValues(req.Network, "rate_limited").Inc()
		return 0, err
	}

	op := &models.Operation{
		ID:             o.nextID.Add(1),
		Submitter:      req.Submitter,
		Network:        req.Network,
		Target:         req.Target,
		Payload:        req.Payload,
		ResourceLimit:  req.ResourceLimit,
		MaxUnitPrice:   req.MaxUnitPrice,
		Denom:          req.Denom,
		Priority:       req.Priority,
		ReservedAmount: reserveAmount,
		ReservationID:  reservationID,
		State:          models.StateQueued,
		SubmittedAt:    now,
	}

	if err := o.sched.Enqueue(op.ID, op.Priority, now); err != nil {
		// Roll the escrow back; the submission never happened
		if relErr := o.ledger.Release(reservationID); relErr != nil {
			slog.Error("Failed to release reservation after enqueue rejection",
				"operation_id", op.ID,
				"error", relErr,
			)
		}
		metrics.AdmissionRejections.WithLabelValues(req.Network, "queue_full").Inc()
		return 0, err
	}

	o.opsMu.Lock()
	o.ops[op.ID] = op
	o.opsMu.Unlock()

	metrics.OperationsSubmitted.WithLabelValues(req.Network).Inc()
	metrics.QueueDepth.WithLabelValues(op.Priority.String()).Inc()
	metrics.EscrowOutstanding.Set(float64(o.ledger.OutstandingReservations()))

	slog.Debug("Operation submitted",
		"operation_id", op.ID,
		"submitter", req.Submitter,
		"network", req.Network,
		"priority", op.Priority.String(),
		"reserved", reserveAmount,
	)
	return op.ID, nil
}

// getOp returns the operation record, if known
func (o *Orchestrator) getOp(id uint64) (*models.Operation, bool) {
	o.opsMu.RLock()
	defer o.opsMu.RUnlock()
	op, ok := o.ops[id]
	return op, ok
}

// transition moves the operation from one state to another atomically.
// Returns false if the operation was not in the expected state, which is how
// double execution of a dequeued-twice id is prevented.
func (o *Orchestrator) transition(op *models.Operation, from, to models.State) bool {
	o.opsMu.Lock()
	defer o.opsMu.Unlock()
	if op.State != from {
		return false
	}
	op.State = to
	return true
}
