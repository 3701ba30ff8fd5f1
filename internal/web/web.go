package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"shadowcal/internal/clock"
	"shadowcal/internal/config"
	"shadowcal/internal/geo"
	"shadowcal/internal/geocode"
	appLog "shadowcal/internal/log"
	"shadowcal/internal/model"
	"shadowcal/internal/preflight"
	"shadowcal/internal/shift"
	"shadowcal/internal/transit"
)

const maxBodyBytes = 5 << 20

// EventStore is the persistence the API needs. A nil store disables the
// /api/events endpoints and owner-based lookups.
type EventStore interface {
	Put(ctx context.Context, ev model.CalendarEvent) (model.CalendarEvent, error)
	PutAll(ctx context.Context, events []model.CalendarEvent) ([]model.CalendarEvent, error)
	List(ctx context.Context, ownerID string, from, to time.Time) ([]model.CalendarEvent, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// TransitEstimator produces commute estimates.
type TransitEstimator interface {
	Estimate(ctx context.Context, origin, dest geo.Point, arriveBy *time.Time) transit.Estimate
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Evaluator *preflight.Evaluator
	Estimator TransitEstimator
	Geocoder  geocode.Geocoder
	Store     EventStore
	Library   *shift.Library
	Clock     clock.Clock
}

// Server exposes the preflight engine and event store over HTTP.
type Server struct {
	cfg  *config.Config
	deps Deps
	mux  *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Library == nil {
		deps.Library = shift.NewLibrary()
	}
	if deps.Evaluator == nil {
		deps.Evaluator = preflight.NewEvaluator(preflight.Config{
			Library:   deps.Library,
			Estimator: deps.Estimator,
			Geocoder:  deps.Geocoder,
			Clock:     deps.Clock,
			Location:  cfg.Location(),
			WeekStart: cfg.WeekStartDay(),
		})
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler with logging and optional basic auth.
func (s *Server) Handler() http.Handler {
	h := s.logRequests(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/preflight", s.handlePreflight)
	s.mux.HandleFunc("POST /api/transit/estimate", s.handleTransitEstimate)
	s.mux.HandleFunc("POST /api/free-slots", s.handleFreeSlots)
	s.mux.HandleFunc("GET /api/patterns", s.handlePatterns)
	s.mux.HandleFunc("GET /api/shadow.ics", s.handleShadowICS)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handlePutEvent)
	s.mux.HandleFunc("DELETE /api/events", s.handleDeleteEvent)
	s.mux.HandleFunc("POST /api/events/import", s.handleImportEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="shadowcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		kv := []any{"method", r.Method, "path", r.URL.Path, "status", rec.status, "took", appLog.Since(start)}
		if rec.status >= http.StatusInternalServerError {
			appLog.Warn("http request failed", kv...)
			return
		}
		appLog.Debug("http request", kv...)
	})
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, deps Deps) error {
	s := NewServer(cfg, deps)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseTimeOrZero(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
