package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facegate/internal/service"
	"github.com/kozaktomas/facegate/internal/store"
)

// IdentitiesHandler handles the admin surface over enrolled identities.
type IdentitiesHandler struct {
	service *service.Service
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(svc *service.Service) *IdentitiesHandler {
	return &IdentitiesHandler{service: svc}
}

// identityResponse is the wire form of an identity. Embedding vectors are
// biometric data and never leave the service.
type identityResponse struct {
	EmployeeID   string    `json:"employee_id"`
	Name         string    `json:"name,omitempty"`
	Model        string    `json:"model"`
	Dim          int       `json:"dim"`
	Metric       string    `json:"metric"`
	Quality      float64   `json:"quality"`
	EnrollmentID string    `json:"enrollment_id"`
	ImageRef     string    `json:"image_ref,omitempty"`
	EnrolledAt   time.Time `json:"enrolled_at"`
}

func toIdentityResponse(identity *store.Identity) identityResponse {
	return identityResponse{
		EmployeeID:   identity.EmployeeID,
		Name:         identity.Name,
		Model:        identity.Model,
		Dim:          identity.Dim,
		Metric:       identity.Metric,
		Quality:      identity.Quality,
		EnrollmentID: identity.EnrollmentID,
		ImageRef:     identity.ImageRef,
		EnrolledAt:   identity.EnrolledAt,
	}
}

type listIdentitiesResponse struct {
	Success    bool               `json:"success"`
	Count      int                `json:"count"`
	Identities []identityResponse `json:"identities"`
}

// List handles GET /api/faces/identities with an optional ?q= filter.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	identities, err := h.service.Identities(r.Context(), query)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	out := make([]identityResponse, 0, len(identities))
	for i := range identities {
		out = append(out, toIdentityResponse(&identities[i]))
	}

	respondJSON(w, http.StatusOK, listIdentitiesResponse{
		Success:    true,
		Count:      len(out),
		Identities: out,
	})
}

type getIdentityResponse struct {
	Success  bool             `json:"success"`
	Identity identityResponse `json:"identity"`
}

// Get handles GET /api/faces/identities/{userId}.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "userId")

	identity, err := h.service.Identity(r.Context(), employeeID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, getIdentityResponse{
		Success:  true,
		Identity: toIdentityResponse(identity),
	})
}

// Delete handles DELETE /api/faces/identities/{userId}.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "userId")

	if err := h.service.Remove(r.Context(), employeeID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "identity removed",
	})
}
