package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobtracker/app/usecase"
	"jobtracker/internal/domain/entity"
	"jobtracker/internal/infrastructure/auth"
	"jobtracker/internal/infrastructure/metrics"
	"jobtracker/internal/infrastructure/ratelimit"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerOptions struct {
	// Authenticate resolves the acting identity into the request context.
	Authenticate func(http.Handler) http.Handler
	Limiter      ratelimit.Limiter
	RateLimit    int
	RateWindow   time.Duration
	// StatsPushInterval is how often the live stats socket re-sends stats.
	StatsPushInterval time.Duration
}

type JobHandler struct {
	jobService usecase.JobUsecase
	store      Pinger
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	opts       HandlerOptions

	// метрики
	reqDuration *prometheus.HistogramVec
	reqCount    *prometheus.CounterVec
	errCount    *prometheus.CounterVec
}

func NewJobHandler(
	jobService usecase.JobUsecase,
	store Pinger,
	logger *slog.Logger,
	reg prometheus.Registerer,
	opts HandlerOptions,
) *JobHandler {

	reqDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	reqCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"method", "path"},
	)

	errCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP request errors.",
		},
		[]string{"method", "path", "status"},
	)

	reg.MustRegister(reqDuration, reqCount, errCount)

	if opts.StatsPushInterval <= 0 {
		opts.StatsPushInterval = 5 * time.Second
	}

	return &JobHandler{
		jobService: jobService,
		store:      store,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts:        opts,
		reqDuration: reqDuration,
		reqCount:    reqCount,
		errCount:    errCount,
	}
}

// Middleware для метрик
func (h *JobHandler) withMetrics(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		method := r.Method

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		statusStr := strconv.Itoa(rw.status)

		h.reqCount.WithLabelValues(method, path).Inc()
		h.reqDuration.WithLabelValues(method, path, statusStr).Observe(duration)

		if rw.status >= 400 {
			h.errCount.WithLabelValues(method, path, statusStr).Inc()
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

// authed wraps a job route with authentication and, for mutations, rate limiting.
func (h *JobHandler) authed(next http.HandlerFunc, limited bool) http.HandlerFunc {
	var handler http.Handler = next
	if limited && h.opts.Limiter != nil {
		handler = ratelimit.Middleware(h.opts.Limiter, "jobs", func(r *http.Request) string {
			id, _ := auth.UserIDFromContext(r.Context())
			if id == "" {
				return ""
			}
			return "jobs:" + r.Method + ":" + id
		}, h.opts.RateLimit, h.opts.RateWindow)(handler)
	}
	if h.opts.Authenticate != nil {
		handler = h.opts.Authenticate(handler)
	}
	return h.withMetrics(handler)
}

func (h *JobHandler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/jobs", h.authed(h.handleCreateJob, true)).Methods(http.MethodPost)
	api.HandleFunc("/jobs", h.authed(h.handleListJobs, false)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/stats", h.authed(h.handleShowStats, false)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/stats/live", h.authed(h.handleLiveStats, false)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.authed(h.handleGetJob, false)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", h.authed(h.handleUpdateJob, true)).Methods(http.MethodPatch)
	api.HandleFunc("/jobs/{id}", h.authed(h.handleDeleteJob, true)).Methods(http.MethodDelete)
	api.HandleFunc("/health", h.withMetrics(http.HandlerFunc(h.handleHealth))).Methods(http.MethodGet)

	// Prometheus
	r.Handle("/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeServiceError maps service failures onto status codes. Store failures
// are logged and reported without detail.
func (h *JobHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *entity.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, errors.New(vErr.Reason))
	case errors.Is(err, entity.ErrForbidden):
		writeError(w, http.StatusForbidden, entity.ErrForbidden)
	case errors.Is(err, entity.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("something went wrong, try again later"))
	}
}

func actorFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication invalid"))
		return "", false
	}
	return actor, true
}

func decodeInput(w http.ResponseWriter, r *http.Request) (entity.JobInput, bool) {
	var in entity.JobInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body: %w", err))
		return in, false
	}
	return in, true
}

// POST /api/v1/jobs
func (h *JobHandler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}

	job, err := h.jobService.CreateJob(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]*entity.Job{"job": job})
}

// GET /api/v1/jobs
func (h *JobHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	list, err := h.jobService.ListJobs(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/v1/jobs/{id}
func (h *JobHandler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	job, err := h.jobService.GetJob(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*entity.Job{"job": job})
}

// PATCH /api/v1/jobs/{id}
func (h *JobHandler) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	job, err := h.jobService.UpdateJob(r.Context(), actor, mux.Vars(r)["id"], in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*entity.Job{"updatedJob": job})
}

// DELETE /api/v1/jobs/{id}
func (h *JobHandler) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := h.jobService.DeleteJob(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"msg": "Success! Job removed"})
}

// GET /api/v1/jobs/stats
func (h *JobHandler) handleShowStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	stats, err := h.jobService.ShowStats(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/v1/jobs/stats/live (websocket)
func (h *JobHandler) handleLiveStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	metrics.IncLiveStatsConnections()
	defer func() {
		metrics.DecLiveStatsConnections()
		_ = conn.Close()
	}()

	// Drain client frames so close messages are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.opts.StatsPushInterval)
	defer ticker.Stop()

	for {
		stats, err := h.jobService.ShowStats(r.Context(), actor)
		if err != nil {
			h.logger.Error("live stats failed", "err", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "stats unavailable"),
				time.Now().Add(time.Second))
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(stats); err != nil {
			return
		}

		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// GET /api/v1/health
func (h *JobHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"ok": true,
		"ts": time.Now().UTC(),
	}
	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("store ping failed", "err", err)
			status["ok"] = false
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}
