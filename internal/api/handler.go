// Package api provides HTTP handlers for the simulation API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/echolabs/echosim/internal/archive"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// HealthHandler reports service and database health.
type HealthHandler struct {
	repo archive.Repository
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(repo archive.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// RegisterHealth registers the health route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// Health checks database connectivity and reports service status.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	db := "ok"
	if err := h.repo.Ping(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		db = err.Error()
	}
	JSON(w, code, map[string]string{
		"status":   status,
		"database": db,
	})
}
