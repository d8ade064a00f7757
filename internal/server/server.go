/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the engine over HTTP: health, metrics, status, a
// world-state push endpoint and the master volume.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_ambience/internal/ambience"
	"github.com/friendsincode/grimnir_ambience/internal/eventbus"
	"github.com/friendsincode/grimnir_ambience/internal/events"
	"github.com/friendsincode/grimnir_ambience/internal/logbuffer"
	"github.com/friendsincode/grimnir_ambience/internal/settings"
	"github.com/friendsincode/grimnir_ambience/internal/telemetry"
	"github.com/friendsincode/grimnir_ambience/internal/world"
)

const maxBodyBytes = 64 << 10

// Engine is the read side of the orchestrator.
type Engine interface {
	Status() ambience.Status
	Playlists() []ambience.PlaylistStatus
}

// Server wires HTTP handlers to the engine.
type Server struct {
	router chi.Router
	engine Engine
	state  *world.State
	bus    *events.Bus
	volume *settings.Store
	logs   *logbuffer.Buffer
	logger zerolog.Logger
}

// New builds the router.
func New(engine Engine, state *world.State, bus *events.Bus, volume *settings.Store, logger zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		engine: engine,
		state:  state,
		bus:    bus,
		volume: volume,
		logger: logger.With().Str("component", "http").Logger(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeadersMiddleware)
	s.router.Use(telemetry.TracingMiddleware("grimnir-ambience-api"))
	s.router.Use(telemetry.MetricsMiddleware)

	s.configureRoutes()
	return s
}

// SetLogBuffer exposes buf on GET /v1/logs. Call before serving.
func (s *Server) SetLogBuffer(buf *logbuffer.Buffer) { s.logs = buf }

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/slots", s.handleSlots)
		r.Get("/playlists", s.handlePlaylists)
		r.Get("/world", s.handleGetWorld)
		r.Post("/world", s.handlePushWorld)
		r.Get("/settings/volume", s.handleGetVolume)
		r.Put("/settings/volume", s.handleSetVolume)
		r.Get("/logs", s.handleLogs)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.engine.Status()
	busy := 0
	for _, slot := range st.Slots {
		if slot.State != ambience.StateIdle.String() {
			busy++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"slots":  len(st.Slots),
		"busy":   busy,
		"active": len(st.Active),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleSlots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status().Slots)
}

func (s *Server) handlePlaylists(w http.ResponseWriter, _ *http.Request) {
	playlists := s.engine.Playlists()
	if playlists == nil {
		playlists = []ambience.PlaylistStatus{}
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleGetWorld(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

// handlePushWorld accepts the same message the NATS and Redis bridges carry.
func (s *Server) handlePushWorld(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large")
		return
	}
	msg, err := eventbus.DecodeMessage(body)
	if err != nil {
		if errors.Is(err, eventbus.ErrUnknownEvent) {
			writeError(w, http.StatusBadRequest, "unknown_event_type")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	eventbus.Apply(s.state, s.bus, *msg, "http")
	s.logger.Debug().Str("event_type", string(msg.EventType)).Bool("snapshot", msg.Snapshot != nil).Msg("world push accepted")
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "event_type": msg.EventType})
}

type volumeRequest struct {
	MasterVolume *float64 `json:"master_volume"`
}

func (s *Server) handleGetVolume(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"master_volume": s.volume.MasterVolume()})
}

func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.MasterVolume == nil {
		writeError(w, http.StatusBadRequest, "master_volume_required")
		return
	}
	v := s.volume.SetMasterVolume(*req.MasterVolume)
	writeJSON(w, http.StatusOK, map[string]float64{"master_volume": v})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
