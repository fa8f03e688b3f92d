// Package server assembles the HTTP handlers and starts the server.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/eventbus"
	"github.com/matthewbaird/railgrid/internal/session"
	"github.com/matthewbaird/railgrid/internal/view"
	"github.com/matthewbaird/railgrid/internal/wire"
)

// Config holds server configuration.
type Config struct {
	Addr     string
	Sessions *session.Manager
	// History, when set, is served at /api/grid/events.
	History *eventbus.History
	Logger  *zap.Logger
}

// NewRouter returns the grid server's routes.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(Recovery(logger), Logging(logger))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	RegisterRoutes(r, cfg.Sessions, cfg.History, logger)
	return r
}

// RegisterRoutes registers the grid HTTP and WebSocket routes.
func RegisterRoutes(r chi.Router, sessions *session.Manager, history *eventbus.History, logger *zap.Logger) {
	ws := wire.NewHandler(sessions, logger)
	sh := &sessionHandler{sessions: sessions}

	r.Route("/api/grid", func(r chi.Router) {
		r.Get("/ws", ws.ServeHTTP)

		r.Post("/sessions", sh.create)
		r.Get("/sessions/{id}/frame", sh.frame)
		r.Delete("/sessions/{id}", sh.remove)

		if history != nil {
			eh := &eventHandler{history: history}
			r.Get("/events", eh.list)
			r.Get("/sessions/{id}/events", eh.list)
		}
	})
}

type eventHandler struct {
	history *eventbus.History
}

// list returns recent write outcomes, newest first. Query parameters:
// schema, entity, after (event ID), failed=true and limit.
func (h *eventHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := eventbus.Query{
		Session:    chi.URLParam(r, "id"),
		Schema:     q.Get("schema"),
		Entity:     q.Get("entity"),
		After:      q.Get("after"),
		FailedOnly: q.Get("failed") == "true",
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		query.Limit = n
	}
	writeJSON(w, http.StatusOK, h.history.Recent(query))
}

type sessionHandler struct {
	sessions *session.Manager
}

type createSessionRequest struct {
	Schema string `json:"schema"`
	Entity string `json:"entity"`
	// Load starts fetching the grid right away.
	Load bool `json:"load"`
}

func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid session request: "+err.Error())
			return
		}
	}
	sess := h.sessions.Create(req.Schema, req.Entity)
	if req.Load {
		if err := sess.Do(r.Context(), func(v *view.View) { v.Load(nil) }); err != nil {
			writeError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *sessionHandler) frame(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(chi.URLParam(r, "id"))
	if sess == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown or expired session")
		return
	}
	var f view.Frame
	if err := sess.Do(r.Context(), func(v *view.View) { f = v.Frame() }); err != nil {
		writeError(w, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *sessionHandler) remove(w http.ResponseWriter, r *http.Request) {
	h.sessions.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// Run starts the HTTP server and shuts it down when ctx is done.
func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("starting grid server", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
