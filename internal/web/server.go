// Package web provides the HTTP status page and control API for the
// geosentinel daemon.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/coordinator"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/eventlog"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/geofence"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/status"
)

// Controller is the subset of the coordinator the API drives.
type Controller interface {
	AddGeofence(ctx context.Context, g geofence.Geofence) (geofence.Geofence, error)
	UpdateGeofence(ctx context.Context, g geofence.Geofence) error
	DeleteGeofence(ctx context.Context, id string) error
	Snooze(ctx context.Context, id string, minutes int) error
	Unsnooze(ctx context.Context, id string) error
	ClearLogs(ctx context.Context) error
	UpdateSettings(ctx context.Context, s geofence.Settings) error
	Snapshot(ctx context.Context) (geofence.Snapshot, error)
	Geofence(ctx context.Context, id string) (geofence.Geofence, geofence.Status, error)
}

// LogReader exposes the event log. *eventlog.Log satisfies it.
type LogReader interface {
	Entries() []eventlog.Entry
}

// Server serves the status page and control API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctl        Controller
	logs       LogReader
}

// New creates a Server. metricsHandler is mounted at /metrics when non-nil.
func New(addr string, tracker *status.Tracker, ctl Controller, logs LogReader, metricsHandler http.Handler) *Server {
	s := &Server{tracker: tracker, ctl: ctl, logs: logs}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)

	r.Get("/logs", s.handleLogs)
	r.Delete("/logs", s.handleClearLogs)

	r.Route("/geofences", func(r chi.Router) {
		r.Get("/", s.handleListGeofences)
		r.Post("/", s.handleAddGeofence)
		r.Get("/{id}", s.handleGetGeofence)
		r.Put("/{id}", s.handleUpdateGeofence)
		r.Delete("/{id}", s.handleDeleteGeofence)
		r.Post("/{id}/snooze", s.handleSnooze)
		r.Delete("/{id}/snooze", s.handleUnsnooze)
	})

	r.Get("/settings", s.handleGetSettings)
	r.Put("/settings", s.handleUpdateSettings)

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		slog.Error("web: render index", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.logs.Entries()
	if entries == nil {
		entries = []eventlog.Entry{}
	}
	writeJSON(w, http.StatusOK, LogsResponse{Logs: entries})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.ClearLogs(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGeofences(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctl.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	now := time.Now()
	out := GeofencesResponse{Geofences: make([]GeofenceResponse, 0, len(snap.Geofences))}
	for _, g := range snap.Geofences {
		st, ok := snap.States[g.ID]
		if !ok {
			st = geofence.Status{State: geofence.StateUnknown}
		}
		out.Geofences = append(out.Geofences, GeofenceResponse{
			Geofence: g,
			Status:   st,
			Snoozing: geofence.IsSnoozing(st, now),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetGeofence(w http.ResponseWriter, r *http.Request) {
	g, st, err := s.ctl.Geofence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GeofenceResponse{
		Geofence: g,
		Status:   st,
		Snoozing: geofence.IsSnoozing(st, time.Now()),
	})
}

func (s *Server) handleAddGeofence(w http.ResponseWriter, r *http.Request) {
	var req GeofenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	g, err := s.ctl.AddGeofence(r.Context(), req.Geofence(""))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleUpdateGeofence(w http.ResponseWriter, r *http.Request) {
	var req GeofenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	g := req.Geofence(chi.URLParam(r, "id"))
	if err := s.ctl.UpdateGeofence(r.Context(), g); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGeofence(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.DeleteGeofence(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	var req SnoozeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ctl.Snooze(r.Context(), chi.URLParam(r, "id"), req.Minutes); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsnooze(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Unsnooze(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctl.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctl.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	// Fields missing from the body keep their current values.
	settings := snap.Settings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, err)
		return
	}
	if err := s.ctl.UpdateSettings(r.Context(), settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, coordinator.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, coordinator.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("web: request failed", "error", err)
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}
