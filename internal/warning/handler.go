package warning

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the warning service over HTTP
type Handler struct {
	service Service
}

// NewHandler creates a new warning handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the warning endpoints on the router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/warnings", h.handleList)
	r.Get("/warnings/unacknowledged", h.handleUnacknowledged)
	r.Post("/warnings/{id}/acknowledge", h.handleAcknowledge)
	r.Delete("/warnings", h.handleClear)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	warnings := h.service.GetAllWarnings()
	if severity := r.URL.Query().Get("severity"); severity != "" {
		warnings = h.service.GetWarningsBySeverity(severity)
	}
	writeJSON(w, http.StatusOK, warnings)
}

func (h *Handler) handleUnacknowledged(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.service.GetUnacknowledgedWarnings())
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.service.AcknowledgeWarning(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "warning not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"acknowledged": true})
}

func (h *Handler) handleClear(w http.ResponseWriter, _ *http.Request) {
	h.service.ClearAllWarnings()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
