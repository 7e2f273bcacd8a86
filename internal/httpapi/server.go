package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/douginoz/iceicedata/internal/scheduler"
)

type StatusSource interface {
	Status() scheduler.Status
}

type Deps struct {
	Version   string
	Scheduler StatusSource
	Tracker   *Tracker
	Sinks     []string
	// HealthCheck, when set, must pass for /healthz to report ok.
	HealthCheck func(ctx context.Context) error
}

func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	h := &handlers{deps: d}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /status", h.handleStatus)
	return mux
}

func NewServer(addr string, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           requestLogger(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type handlers struct {
	deps Deps
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.deps.HealthCheck(ctx); err != nil {
			slog.Error("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "health check failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Version   string           `json:"version"`
	Scheduler scheduler.Status `json:"scheduler"`
	Sinks     []string         `json:"sinks"`
	Stations  []StationStatus  `json:"stations"`
}

func (h *handlers) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Version:  h.deps.Version,
		Sinks:    h.deps.Sinks,
		Stations: []StationStatus{},
	}
	if resp.Sinks == nil {
		resp.Sinks = []string{}
	}
	if h.deps.Scheduler != nil {
		resp.Scheduler = h.deps.Scheduler.Status()
	}
	if h.deps.Tracker != nil {
		resp.Stations = h.deps.Tracker.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
