package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/sheetload/internal/filetype"
	"github.com/JonMunkholm/sheetload/internal/logging"
)

const healthTimeout = 3 * time.Second

// =============================================================================
// Health
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := map[string]any{
		"status": "ok",
		"runs":   s.service.LimiterStatus(),
	}
	if err := s.service.Ping(ctx); err != nil {
		logging.FromContext(ctx).Warn("health check failed", "error", err)
		resp["status"] = "unavailable"
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}

// =============================================================================
// File types
// =============================================================================

type typeResponse struct {
	Name string `json:"name"`
	filetype.Config
	Strategy filetype.Strategy `json:"strategy"`
	Table    string            `json:"table"`
}

func newTypeResponse(cfg filetype.Config) typeResponse {
	return typeResponse{Name: cfg.Name, Config: cfg, Strategy: cfg.Strategy(), Table: cfg.Table()}
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	cfgs, err := s.service.Settings().All()
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]typeResponse, len(cfgs))
	for i, cfg := range cfgs {
		out[i] = newTypeResponse(cfg)
	}
	render.JSON(w, r, out)
}

func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cfg, err := s.service.Settings().Get(name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if cfg.IsEmpty() {
		respondError(w, r, fmt.Errorf("file type %q: %w", name, errNotFound))
		return
	}
	cfg.Name = name
	render.JSON(w, r, newTypeResponse(cfg))
}

func (s *Server) handleSaveType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	// Settings validate the config on save.
	var cfg filetype.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.service.Settings().Save(name, cfg); err != nil {
		respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("file type saved", "type", name, "columns", len(cfg.Columns))
	cfg.Name = name
	render.JSON(w, r, newTypeResponse(cfg))
}

// =============================================================================
// Inspection
// =============================================================================

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	path, err := s.paths.check(req.Path)
	if err != nil {
		respondError(w, r, err)
		return
	}

	name, ok, err := s.service.DetectType(r.Context(), path)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"path": path, "type": name, "detected": ok})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	path, err := s.paths.check(req.Path)
	if err != nil {
		respondError(w, r, err)
		return
	}

	p, err := s.service.PreviewColumns(r.Context(), path, req.Type)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, p)
}

// =============================================================================
// Runs
// =============================================================================

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	paths := make([]string, len(req.Paths))
	for i, p := range req.Paths {
		checked, err := s.paths.check(p)
		if err != nil {
			respondError(w, r, err)
			return
		}
		paths[i] = checked
	}

	id, err := s.service.StartRun(r.Context(), paths)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("run started", "run_id", id, "paths", len(paths))
	w.Header().Set("Location", "/api/runs/"+id)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"id": id})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.service.ListRuns())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, info)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.CancelRun(id); err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("run cancel requested", "run_id", id)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"id": id, "status": "cancelling"})
}
