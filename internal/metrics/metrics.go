package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResourcesRegistered tracks live managed resources per type
	ResourcesRegistered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "menuguard_resources_registered",
			Help: "Number of managed resources currently registered",
		},
		[]string{"type"},
	)

	// ResourceCleanupsTotal tracks cleanup attempts per type and outcome
	ResourceCleanupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuguard_resource_cleanups_total",
			Help: "Total number of resource cleanup attempts",
		},
		[]string{"type", "result"},
	)

	// ResourcesReclaimedTotal tracks resources reclaimed under memory pressure
	ResourcesReclaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuguard_resources_reclaimed_total",
			Help: "Total number of resources reclaimed under memory pressure",
		},
		[]string{"type", "level"},
	)

	// MemoryPressureLevel tracks the last observed pressure level (0=normal .. 3=critical)
	MemoryPressureLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "menuguard_memory_pressure_level",
			Help: "Last observed memory pressure level",
		},
	)

	// DegradedMode is 1 while the process runs in degraded mode
	DegradedMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "menuguard_degraded_mode",
			Help: "Whether degraded mode is active",
		},
	)

	// FocusRequestsTotal tracks focus requests per source and outcome
	FocusRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuguard_focus_requests_total",
			Help: "Total number of focus requests",
		},
		[]string{"source", "result"},
	)

	// FocusConflictsTotal tracks conflict resolutions per mode and outcome
	FocusConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuguard_focus_conflicts_total",
			Help: "Total number of focus conflict resolutions",
		},
		[]string{"mode", "result"},
	)

	// DeadlockRecoveriesTotal tracks deadlock recovery attempts
	DeadlockRecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuguard_focus_deadlock_recoveries_total",
			Help: "Total number of focus deadlock recovery attempts",
		},
		[]string{"attempt", "result"},
	)

	// ErrorsHandledTotal tracks errors routed through the recovery engine
	ErrorsHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menuguard_errors_handled_total",
			Help: "Total number of menu errors handled",
		},
		[]string{"kind", "severity", "result"},
	)

	// RecoveryLatency tracks time spent inside recovery strategies
	RecoveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menuguard_recovery_latency_seconds",
			Help:    "Recovery strategy latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
)
