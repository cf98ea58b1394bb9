package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/facegate/internal/service"
)

// FacesHandler handles the biometric endpoints: enroll, verify, compare
// and identify.
type FacesHandler struct {
	service   *service.Service
	maxUpload int64
	logger    *slog.Logger
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(svc *service.Service, maxUpload int64, logger *slog.Logger) *FacesHandler {
	return &FacesHandler{
		service:   svc,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

type enrollResponse struct {
	Success      bool    `json:"success"`
	Message      string  `json:"message"`
	EnrollmentID string  `json:"enrollment_id"`
	Quality      float64 `json:"quality"`
	Model        string  `json:"model"`
}

type verifyResponse struct {
	Success    bool    `json:"success"`
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
	Threshold  float64 `json:"threshold"`
}

// Enroll handles POST /api/faces/enroll/{userId}.
func (h *FacesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "userId")

	image, ok := readFaceUpload(w, r, h.maxUpload)
	if !ok {
		return
	}
	name := r.FormValue("name")

	result, err := h.service.Enroll(r.Context(), employeeID, name, image)
	if err != nil {
		h.logger.Warn("enrollment failed",
			"employee_id", sanitizeForLog(employeeID),
			"error", err,
		)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, enrollResponse{
		Success:      true,
		Message:      "face enrolled successfully",
		EnrollmentID: result.EnrollmentID,
		Quality:      result.Quality,
		Model:        result.Model,
	})
}

// Verify handles POST /api/faces/verify/{userId}.
func (h *FacesHandler) Verify(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "userId")

	image, ok := readFaceUpload(w, r, h.maxUpload)
	if !ok {
		return
	}

	result, err := h.service.Verify(r.Context(), employeeID, image)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, verifyResponse{
		Success:    true,
		Matched:    result.Matched,
		Confidence: result.Confidence,
		Distance:   result.Distance,
		Threshold:  result.Threshold,
	})
}

// Compare handles POST /api/faces/compare: a stateless comparison of the
// uploaded image against a caller-supplied embedding. The embedding rides
// in the "embedding" form field as a JSON float array ("stored_embedding"
// is accepted as the historical field name).
func (h *FacesHandler) Compare(w http.ResponseWriter, r *http.Request) {
	image, ok := readFaceUpload(w, r, h.maxUpload)
	if !ok {
		return
	}

	raw := r.FormValue("embedding")
	if raw == "" {
		raw = r.FormValue("stored_embedding")
	}
	if raw == "" {
		respondError(w, http.StatusBadRequest, service.CodeInvalidRequest,
			"embedding form field is required")
		return
	}

	var reference []float32
	if err := json.Unmarshal([]byte(raw), &reference); err != nil {
		respondError(w, http.StatusBadRequest, service.CodeInvalidRequest,
			"embedding must be a JSON array of numbers")
		return
	}

	result, err := h.service.Compare(r.Context(), image, reference)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, verifyResponse{
		Success:    true,
		Matched:    result.Matched,
		Confidence: result.Confidence,
		Distance:   result.Distance,
		Threshold:  result.Threshold,
	})
}

type identifyCandidate struct {
	EmployeeID string  `json:"employee_id"`
	Name       string  `json:"name,omitempty"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

type identifyResponse struct {
	Success    bool                `json:"success"`
	Candidates []identifyCandidate `json:"candidates"`
}

// Identify handles POST /api/faces/identify: 1:N search over all enrolled
// identities, nearest first.
func (h *FacesHandler) Identify(w http.ResponseWriter, r *http.Request) {
	image, ok := readFaceUpload(w, r, h.maxUpload)
	if !ok {
		return
	}

	k := 0
	if v := r.FormValue("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, service.CodeInvalidRequest,
				"k must be a non-negative integer")
			return
		}
		k = n
	}

	candidates, err := h.service.Identify(r.Context(), image, k)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	out := make([]identifyCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, identifyCandidate{
			EmployeeID: c.EmployeeID,
			Name:       c.Name,
			Distance:   c.Distance,
			Confidence: c.Confidence,
		})
	}

	respondJSON(w, http.StatusOK, identifyResponse{Success: true, Candidates: out})
}
