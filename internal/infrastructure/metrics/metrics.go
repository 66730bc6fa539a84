package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Jobs
	JobsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobtracker_jobs_created_total",
			Help: "Total number of job applications created",
		},
	)
	JobsUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobtracker_jobs_updated_total",
			Help: "Total number of job applications updated",
		},
	)
	JobsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobtracker_jobs_deleted_total",
			Help: "Total number of job applications deleted",
		},
	)
	ForbiddenAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtracker_forbidden_attempts_total",
			Help: "Requests rejected because the caller does not own the job",
		},
		[]string{"op"}, // op: get|update|delete
	)

	// Store ops
	StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtracker_store_ops_total",
			Help: "Job store operations performed",
		},
		[]string{"store", "op"}, // op: insert|get|list|update|delete|count
	)

	// Rate limiting
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtracker_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"limiter"},
	)

	// Websockets
	LiveStatsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobtracker_live_stats_connections",
			Help: "Current number of open live stats websocket connections",
		},
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobtracker_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsCreated,
		JobsUpdated,
		JobsDeleted,
		ForbiddenAttempts,
		StoreOps,
		RateLimited,
		LiveStatsConnections,
		Errors,
	)
}

// StartMetricsServer serves /metrics on addr until the server fails.
func StartMetricsServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Jobs
func IncJobsCreated() {
	JobsCreated.Inc()
}

func IncJobsUpdated() {
	JobsUpdated.Inc()
}

func IncJobsDeleted() {
	JobsDeleted.Inc()
}

func IncForbidden(op string) {
	ForbiddenAttempts.WithLabelValues(op).Inc()
}

// Store
func IncStoreOp(store, op string) {
	StoreOps.WithLabelValues(store, op).Inc()
}

// Rate limiting
func IncRateLimited(limiter string) {
	RateLimited.WithLabelValues(limiter).Inc()
}

// Websocket
func IncLiveStatsConnections() {
	LiveStatsConnections.Inc()
}

func DecLiveStatsConnections() {
	LiveStatsConnections.Dec()
}

// Errors
func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
