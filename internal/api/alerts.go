package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/auth"
	"github.com/dennisdiepolder/monti/callmonitor/internal/storage"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AlertRepository reads and acknowledges stored supervisor alerts
type AlertRepository interface {
	ListAlerts(ctx context.Context, supervisorID string, status types.AlertStatus, limit int) ([]types.SupervisorAlert, error)
	AcknowledgeAlert(ctx context.Context, alertID int64, acknowledgedBy string) error
}

// AlertsHandler provides REST endpoints for supervisor alerts
type AlertsHandler struct {
	store  AlertRepository
	logger zerolog.Logger
}

// NewAlertsHandler creates a new AlertsHandler
func NewAlertsHandler(store AlertRepository, logger zerolog.Logger) *AlertsHandler {
	return &AlertsHandler{
		store:  store,
		logger: logger.With().Str("component", "alerts_handler").Logger(),
	}
}

// List handles GET /api/supervisors/{supervisorId}/alerts?status=active&limit=50
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	supervisorID := types.NormalizeID(chi.URLParam(r, "supervisorId"))
	if supervisorID == "" {
		http.Error(w, "supervisorId is required", http.StatusBadRequest)
		return
	}

	status := types.AlertStatus(strings.ToLower(r.URL.Query().Get("status")))
	if status == "" {
		status = types.AlertStatusActive
	}
	if status != types.AlertStatusActive && status != types.AlertStatusAcknowledged {
		http.Error(w, "status must be active or acknowledged", http.StatusBadRequest)
		return
	}

	limit := storage.DefaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	alerts, err := h.store.ListAlerts(r.Context(), supervisorID, status, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("supervisor_id", supervisorID).Msg("failed to list alerts")
		http.Error(w, "failed to retrieve alerts", http.StatusInternalServerError)
		return
	}

	if alerts == nil {
		alerts = []types.SupervisorAlert{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

// Acknowledge handles POST /api/alerts/{alertId}/ack
func (h *AlertsHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	alertID, err := strconv.ParseInt(chi.URLParam(r, "alertId"), 10, 64)
	if err != nil || alertID <= 0 {
		http.Error(w, "invalid alertId", http.StatusBadRequest)
		return
	}

	by := "api"
	if claims, ok := auth.GetUserFromContext(r.Context()); ok {
		switch {
		case claims.Email != "":
			by = claims.Email
		case claims.Subject != "":
			by = claims.Subject
		}
	}

	if err := h.store.AcknowledgeAlert(r.Context(), alertID, by); err != nil {
		if errors.Is(err, storage.ErrAlertNotFound) {
			http.Error(w, "alert not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Int64("alert_id", alertID).Msg("failed to acknowledge alert")
		http.Error(w, "failed to acknowledge alert", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Int64("alert_id", alertID).Str("acknowledged_by", by).Msg("alert acknowledged via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types.AlertAcknowledged{
		Type:      types.MsgTypeAlertAcknowledged,
		AlertID:   alertID,
		Timestamp: time.Now(),
	})
}
