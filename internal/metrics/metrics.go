package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics - Track admission and execution volume
var (
	OperationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_operations_submitted_total",
			Help: "Total number of operations accepted at submission by network",
		},
		[]string{"network"},
	)

	AdmissionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_admission_rejections_total",
			Help: "Total number of submissions rejected by reason",
		},
		[]string{"network", "reason"},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_executions_total",
			Help: "Total number of executions by outcome",
		},
		[]string{"outcome"},
	)

	FeesDistributed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_fees_distributed_total",
			Help: "Total fee amount credited to payees by role",
		},
		[]string{"role"},
	)

	OperationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txengine_operations_expired_total",
		Help: "Total number of queued operations expired by cleanup",
	})

	OperationsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txengine_operations_cancelled_total",
		Help: "Total number of queued operations cancelled",
	})
)

// Performance metrics - Track execution speed
var (
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "txengine_execution_duration_seconds",
		Help:    "Time taken to execute a single operation",
		Buckets: prometheus.DefBuckets,
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "txengine_batch_size",
		Help:    "Number of operations executed per batch",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})
)

// State metrics - Track current system state
var (
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "txengine_queue_depth",
			Help: "Number of queued operations by priority",
		},
		[]string{"priority"},
	)

	EscrowOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txengine_escrow_outstanding",
		Help: "Number of unresolved escrow reservations",
	})

	ThrottleRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txengine_throttle_rejections_total",
		Help: "Executions rejected by the minimum inter-execution interval",
	})
)

// Error metrics - Track failures
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)
)
