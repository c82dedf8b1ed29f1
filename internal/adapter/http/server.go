// Package http exposes the service's internal HTTP surface: health and
// metrics endpoints plus the resource lookup, populate, and delete routes.
// Authentication happens at the gateway; this server listens on an internal
// address only.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reliefmap/disaster-resource-service/internal/adapter/overpass"
	"github.com/reliefmap/disaster-resource-service/internal/domain"
	"github.com/reliefmap/disaster-resource-service/internal/pipeline"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ResourceService is the pipeline surface the HTTP handlers call.
type ResourceService interface {
	Nearby(ctx context.Context, disasterID string, lat, lon float64) (pipeline.NearbyResult, error)
	AutoPopulate(ctx context.Context, disasterID string) (pipeline.PopulateResult, error)
	Delete(ctx context.Context, resourceID string) error
}

// Server exposes resource routes plus health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	service    ResourceService
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(addr string, service ResourceService, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		service: service,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /disasters/{id}/resources", s.handleNearby)
	mux.HandleFunc("POST /disasters/{id}/resources/populate", s.handlePopulate)
	mux.HandleFunc("DELETE /resources/{id}", s.handleDelete)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// nearbyResponse tags cache hits so callers can tell a fresh read from a
// cached one. Cached is omitted on the store path.
type nearbyResponse struct {
	Resources []domain.Resource `json:"resources"`
	Cached    bool              `json:"cached,omitempty"`
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	disasterID := r.PathValue("id")

	lat, err := parseCoord(r.URL.Query().Get("lat"), -90, 90)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing lat")
		return
	}
	lon, err := parseCoord(r.URL.Query().Get("lon"), -180, 180)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing lon")
		return
	}

	result, err := s.service.Nearby(r.Context(), disasterID, lat, lon)
	if err != nil {
		s.logger.Error("nearby lookup failed", "error", err, "disaster_id", disasterID)
		writeError(w, http.StatusInternalServerError, "failed to load resources")
		return
	}

	resources := result.Resources
	if resources == nil {
		resources = []domain.Resource{}
	}
	writeJSON(w, http.StatusOK, nearbyResponse{Resources: resources, Cached: result.Cached})
}

func (s *Server) handlePopulate(w http.ResponseWriter, r *http.Request) {
	disasterID := r.PathValue("id")

	result, err := s.service.AutoPopulate(r.Context(), disasterID)
	switch {
	case errors.Is(err, domain.ErrDisasterNotFound):
		writeError(w, http.StatusNotFound, "disaster not found")
	case errors.Is(err, overpass.ErrUpstream):
		// The error carries upstream status and body fragments; those stay
		// in the log, clients get the fixed message.
		s.logger.Error("population upstream failure", "error", err, "disaster_id", disasterID)
		writeError(w, http.StatusBadGateway, "Failed to query OSM")
	case err != nil:
		s.logger.Error("population failed", "error", err, "disaster_id", disasterID)
		writeError(w, http.StatusInternalServerError, "failed to populate resources")
	case result.Message != "":
		writeJSON(w, http.StatusOK, map[string]string{"message": result.Message})
	default:
		writeJSON(w, http.StatusOK, map[string]int{"inserted": result.Inserted})
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("id")

	err := s.service.Delete(r.Context(), resourceID)
	switch {
	case errors.Is(err, domain.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case err != nil:
		s.logger.Error("delete failed", "error", err, "resource_id", resourceID)
		writeError(w, http.StatusInternalServerError, "failed to delete resource")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseCoord(raw string, min, max float64) (float64, error) {
	if raw == "" {
		return 0, errors.New("missing coordinate")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, errors.New("coordinate out of range")
	}
	return v, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
