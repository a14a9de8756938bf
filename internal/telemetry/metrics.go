package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	VoucherRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captiveportal",
			Subsystem: "voucher",
			Name:      "redemptions_total",
			Help:      "Total voucher redemption attempts by outcome.",
		},
		[]string{"outcome"},
	)

	VoucherCollisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "captiveportal",
			Subsystem: "voucher",
			Name:      "code_collisions_total",
			Help:      "Total number of code-generation collisions hit during voucher creation.",
		},
	)

	GrantTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captiveportal",
			Subsystem: "grant",
			Name:      "transitions_total",
			Help:      "Total access grant state transitions.",
		},
		[]string{"to_status"},
	)

	BookingValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captiveportal",
			Subsystem: "booking",
			Name:      "validations_total",
			Help:      "Total booking-code validation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	ControllerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captiveportal",
			Subsystem: "controller",
			Name:      "calls_total",
			Help:      "Total controller adapter calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	ControllerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "captiveportal",
			Subsystem: "controller",
			Name:      "call_duration_seconds",
			Help:      "Controller adapter call duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"operation"},
	)

	RetryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "captiveportal",
			Subsystem: "retryqueue",
			Name:      "depth",
			Help:      "Current number of pending retry queue items.",
		},
	)

	RetryQueueAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captiveportal",
			Subsystem: "retryqueue",
			Name:      "attempts_total",
			Help:      "Total retry queue item attempts by outcome.",
		},
		[]string{"outcome"},
	)

	RateLimitRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "captiveportal",
			Subsystem: "guest",
			Name:      "rate_limit_rejections_total",
			Help:      "Total guest requests rejected by the per-IP rate limiter.",
		},
	)

	ReservationPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captiveportal",
			Subsystem: "reservation",
			Name:      "polls_total",
			Help:      "Total reservation source poll attempts by outcome.",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "captiveportal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// All returns every collector for registration with the metrics registry.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		VoucherRedemptionsTotal,
		VoucherCollisionsTotal,
		GrantTransitionsTotal,
		BookingValidationsTotal,
		ControllerCallsTotal,
		ControllerCallDuration,
		RetryQueueDepth,
		RetryQueueAttemptsTotal,
		RateLimitRejectionsTotal,
		ReservationPollsTotal,
		HTTPRequestDuration,
	}
}

// NewRegistry creates a Prometheus registry pre-populated with the standard
// process collectors plus the given service-specific collectors.
func NewRegistry(collectors ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(collectors...)
	return reg
}
