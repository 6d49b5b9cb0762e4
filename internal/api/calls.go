package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/calls"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// CallReader reads in-memory calls
type CallReader interface {
	List() []types.Call
	Get(callID string) (types.Call, bool)
}

// CallEnder ends a call
type CallEnder interface {
	EndCall(ctx context.Context, callID, reason string) (types.Call, error)
}

// StreakReader exposes the live negative streak of a call
type StreakReader interface {
	Streak(callID string) int
}

// CallSummary is the list view of a call
type CallSummary struct {
	CallID         string           `json:"callId"`
	AgentID        string           `json:"agentId"`
	CustomerID     string           `json:"customerId,omitempty"`
	Extension      string           `json:"extension,omitempty"`
	Status         types.CallStatus `json:"status"`
	StartTime      time.Time        `json:"startTime"`
	LastActivity   time.Time        `json:"lastActivity"`
	EndTime        *time.Time       `json:"endTime,omitempty"`
	EndReason      string           `json:"endReason,omitempty"`
	MessageCount   int              `json:"messageCount"`
	NegativeStreak int              `json:"negativeStreak"`
}

// CallDetail is a full call with its live streak
type CallDetail struct {
	types.Call
	NegativeStreak int `json:"negativeStreak"`
}

// CallsHandler provides REST endpoints for monitored calls
type CallsHandler struct {
	calls   CallReader
	ender   CallEnder
	streaks StreakReader
	logger  zerolog.Logger
}

// NewCallsHandler creates a new CallsHandler
func NewCallsHandler(reader CallReader, ender CallEnder, streaks StreakReader, logger zerolog.Logger) *CallsHandler {
	return &CallsHandler{
		calls:   reader,
		ender:   ender,
		streaks: streaks,
		logger:  logger.With().Str("component", "calls_handler").Logger(),
	}
}

// List handles GET /api/calls?status=active&agentId=1001
func (h *CallsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := types.CallStatus(strings.ToLower(r.URL.Query().Get("status")))
	if status != "" && status != types.CallStatusActive && status != types.CallStatusEnded {
		http.Error(w, "status must be active or ended", http.StatusBadRequest)
		return
	}
	agentID := types.NormalizeID(r.URL.Query().Get("agentId"))

	out := []CallSummary{}
	for _, c := range h.calls.List() {
		if status != "" && c.Status != status {
			continue
		}
		if agentID != "" && c.AgentID != agentID {
			continue
		}
		out = append(out, CallSummary{
			CallID:         c.CallID,
			AgentID:        c.AgentID,
			CustomerID:     c.CustomerID,
			Extension:      c.Extension,
			Status:         c.Status,
			StartTime:      c.StartTime,
			LastActivity:   c.LastActivity,
			EndTime:        c.EndTime,
			EndReason:      c.EndReason,
			MessageCount:   c.MessageCount(),
			NegativeStreak: h.streaks.Streak(c.CallID),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// Get handles GET /api/calls/{callId}
func (h *CallsHandler) Get(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	if callID == "" {
		http.Error(w, "callId is required", http.StatusBadRequest)
		return
	}

	c, ok := h.calls.Get(callID)
	if !ok {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CallDetail{Call: c, NegativeStreak: h.streaks.Streak(callID)})
}

// End handles POST /api/calls/{callId}/end
func (h *CallsHandler) End(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callId")
	if callID == "" {
		http.Error(w, "callId is required", http.StatusBadRequest)
		return
	}

	c, err := h.ender.EndCall(r.Context(), callID, calls.ReasonSupervisorEnd)
	switch {
	case errors.Is(err, calls.ErrCallNotFound):
		http.Error(w, "call not found", http.StatusNotFound)
		return
	case errors.Is(err, calls.ErrCallEnded):
		http.Error(w, "call already ended", http.StatusConflict)
		return
	case err != nil:
		h.logger.Error().Err(err).Str("call_id", callID).Msg("failed to end call")
		http.Error(w, "failed to end call", http.StatusInternalServerError)
		return
	}

	h.logger.Info().
		Str("agent_id", c.AgentID).
		Str("call_id", callID).
		Msg("ended call via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "call ended",
		"agentId": c.AgentID,
		"callId":  callID,
		"reason":  c.EndReason,
	})
}
