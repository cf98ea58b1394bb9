package handlers

import (
	"net/http"

	"github.com/kozaktomas/facegate/internal/service"
)

// HealthHandler reports liveness plus model server and store reachability.
type HealthHandler struct {
	service *service.Service
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(svc *service.Service) *HealthHandler {
	return &HealthHandler{service: svc}
}

type healthResponse struct {
	Status    string `json:"status"`
	Model     string `json:"model"`
	Extractor string `json:"extractor"`
	Store     string `json:"store"`
	Enrolled  int    `json:"enrolled"`
}

// Healthz handles GET /healthz. Degraded dependencies turn the response
// into a 503 so orchestrators stop routing traffic here.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health(r.Context())

	status := http.StatusOK
	text := "ok"
	if !health.Healthy {
		status = http.StatusServiceUnavailable
		text = "degraded"
	}

	respondJSON(w, status, healthResponse{
		Status:    text,
		Model:     health.Model,
		Extractor: health.Extractor,
		Store:     health.Store,
		Enrolled:  health.Enrolled,
	})
}
