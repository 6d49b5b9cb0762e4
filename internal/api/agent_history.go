package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// SnapshotReader lists persisted snapshots of ended calls
type SnapshotReader interface {
	ListAgentSnapshots(ctx context.Context, agentID string, limit int) ([]types.CallSnapshot, error)
}

// AgentHistoryHandler provides REST endpoints for agent call history
type AgentHistoryHandler struct {
	store  SnapshotReader
	logger zerolog.Logger
}

// NewAgentHistoryHandler creates a new AgentHistoryHandler
func NewAgentHistoryHandler(store SnapshotReader, logger zerolog.Logger) *AgentHistoryHandler {
	return &AgentHistoryHandler{
		store:  store,
		logger: logger.With().Str("component", "agent_history_handler").Logger(),
	}
}

// GetCalls returns the most recent ended calls of an agent
// GET /api/agents/{agentId}/calls?limit=20
func (h *AgentHistoryHandler) GetCalls(w http.ResponseWriter, r *http.Request) {
	agentID := types.NormalizeID(chi.URLParam(r, "agentId"))
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.store.ListAgentSnapshots(r.Context(), agentID, limit)
	if err != nil {
		h.logger.Error().Err(err).
			Str("agent_id", agentID).
			Msg("failed to get agent calls")
		http.Error(w, "failed to retrieve calls", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []types.CallSnapshot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
