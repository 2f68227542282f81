package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Maken-HQ-Team/meetmate/internal/availability"
	"github.com/Maken-HQ-Team/meetmate/internal/models"
	"github.com/Maken-HQ-Team/meetmate/internal/monitor"
	"github.com/Maken-HQ-Team/meetmate/internal/timezone"
)

// HealthChecker reports store reachability
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handlers holds the dependencies of the HTTP endpoints
type Handlers struct {
	svc       *availability.Service
	converter *timezone.Converter
	monitor   *monitor.Monitor
	health    HealthChecker
	logger    *zap.Logger
}

// NewHandlers creates the HTTP handlers
func NewHandlers(svc *availability.Service, converter *timezone.Converter, mon *monitor.Monitor, health HealthChecker, logger *zap.Logger) *Handlers {
	return &Handlers{
		svc:       svc,
		converter: converter,
		monitor:   mon,
		health:    health,
		logger:    logger,
	}
}

// availabilityResponse is the merged, timezone-converted calendar for one
// viewer
type availabilityResponse struct {
	Windows  []timezone.ConvertedWindow        `json:"windows"`
	Profiles map[string]models.ProfileSnapshot `json:"profiles"`
	Loading  bool                              `json:"loading"`
	Timezone string                            `json:"timezone"`
}

// HealthHandler reports liveness and store reachability
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.health.Health(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AvailabilityHandler returns the viewer's merged calendar converted to the
// requested timezone
func (h *Handlers) AvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	viewerID := r.URL.Query().Get("viewer")
	if viewerID == "" {
		writeError(w, http.StatusBadRequest, "viewer is required")
		return
	}

	target := r.URL.Query().Get("tz")
	if target == "" {
		target = "UTC"
	}

	result, loading := h.svc.Merged(viewerID)
	converted := h.converter.ConvertAll(result.Windows, result.Profiles, target)
	if converted == nil {
		converted = []timezone.ConvertedWindow{}
	}

	profiles := result.Profiles
	if profiles == nil {
		profiles = map[string]models.ProfileSnapshot{}
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		Windows:  converted,
		Profiles: profiles,
		Loading:  loading,
		Timezone: target,
	})
}

// RefetchHandler forces an immediate sync cycle for the viewer
func (h *Handlers) RefetchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	viewerID := r.URL.Query().Get("viewer")
	if viewerID == "" {
		writeError(w, http.StatusBadRequest, "viewer is required")
		return
	}

	h.svc.Refetch(viewerID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refetch scheduled"})
}

// GrantsHandler lists the grants an owner has issued, with viewer profiles
func (h *Handlers) GrantsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	grants, err := h.svc.MyGrants(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to list grants", zap.String("owner_id", ownerID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list grants")
		return
	}
	if grants == nil {
		grants = []models.GrantWithProfile{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"grants": grants})
}

// DashboardHandler exposes the monitor's health dashboard
func (h *Handlers) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, h.monitor.Dashboard())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
