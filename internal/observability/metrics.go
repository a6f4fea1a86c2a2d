package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "otp_service_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"path", "method", "status"},
	)

	// OTPIssued tracks issued OTP codes per channel
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_service_otp_issued_total",
			Help: "Number of OTP codes issued",
		},
		[]string{"channel"},
	)

	// OTPVerifications tracks verification attempts per outcome
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_service_otp_verifications_total",
			Help: "Number of OTP verification attempts",
		},
		[]string{"result"},
	)

	// TokensConsumed tracks ledger token consumption
	TokensConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_service_tokens_consumed_total",
			Help: "Number of ledger tokens consumed",
		},
	)

	// RateLimitRejections tracks requests rejected by the rate limiter
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_service_rate_limit_rejections_total",
			Help: "Number of requests rejected by the rate limiter",
		},
	)

	// DispatchJobs tracks delivery jobs per status
	DispatchJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_service_dispatch_jobs_total",
			Help: "Number of delivery jobs processed",
		},
		[]string{"channel", "status"},
	)

	// DispatchQueueDepth tracks the current delivery queue depth
	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otp_service_dispatch_queue_depth",
			Help: "Number of delivery jobs waiting in the queue",
		},
	)

	// CacheHits tracks cache hits
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_service_cache_hits_total",
			Help: "Number of cache hits",
		},
		[]string{"operation"},
	)

	// ActiveConnections tracks active connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "otp_service_active_connections",
			Help: "Number of active connections",
		},
	)
)
