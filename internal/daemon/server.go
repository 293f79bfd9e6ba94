package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"qline/internal/api"
)

func (d *Daemon) router() http.Handler {
	r := chi.NewRouter()
	r.Use(d.requestMiddleware)

	r.Get("/healthz", d.handleHealthz)
	r.Method(http.MethodGet, "/metrics", d.metricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(d.cfg.Paths.APIToken))

		r.Get("/status", d.handleStatus)
		r.Get("/health", d.handleHealth)
		r.Get("/scan", d.handleScan)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", d.handleIntake)
			r.Get("/", d.handleListJobs)
			r.Route("/{qlid}", func(r chi.Router) {
				r.Get("/", d.handleGetJob)
				r.Post("/advance", d.handleAdvance)
				r.Post("/steps", d.handleRecordStep)
				r.Get("/history", d.handleHistory)
				r.Get("/report", d.handleReport)
				r.Get("/diagnoses", d.handleListDiagnoses)
				r.Post("/diagnoses", d.handleOpenDiagnosis)
				r.Get("/certifications", d.handleListCertifications)
				r.Post("/certifications", d.handleIssueCertification)
			})
		})
		r.Post("/diagnoses/{id}/repair", d.handleUpdateRepair)
		r.Get("/certifications/{serial}", d.handleGetCertification)
		r.Post("/certifications/{serial}/revoke", d.handleRevokeCertification)
	})
	return r
}

// metricsHandler refreshes the jobs-by-state gauge from the store before
// handing the scrape to the collector.
func (d *Daemon) metricsHandler() http.Handler {
	scrape := d.collector.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if health, err := d.store.Health(r.Context()); err == nil {
			counts := make(map[string]int, len(health.ByState))
			for state, count := range health.ByState {
				counts[string(state)] = count
			}
			d.collector.SetJobsByState(counts)
		} else {
			d.logger.Warn("metrics health refresh failed", slog.Any("error", err))
		}
		scrape.ServeHTTP(w, r)
	})
}

// requestMiddleware tags each request with an id, then logs and measures it.
func (d *Daemon) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(start)

		d.collector.HTTPRequest(recorder.status, elapsed.Seconds())
		d.logger.Debug("http request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", recorder.status),
			slog.Duration("elapsed", elapsed))
	})
}

// authMiddleware validates bearer tokens. An empty token disables auth.
func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (d *Daemon) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		d.logger.Warn("encode response", slog.Any("error", err))
	}
}

func (d *Daemon) writeError(w http.ResponseWriter, status int, message string) {
	d.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// writeServiceError maps a service error onto its HTTP status.
func (d *Daemon) writeServiceError(w http.ResponseWriter, err error) {
	status := api.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		d.logger.Error("request failed", slog.Any("error", err))
	}
	d.writeError(w, status, err.Error())
}

// actorFrom extracts the acting operator from the request. Mutating handlers
// refuse requests without one; the audit trail is useless otherwise.
func actorFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Qline-Actor"))
}

func decodeBody(r *http.Request, target any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
