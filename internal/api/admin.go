package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ConnectionCounter reports live UI connections
type ConnectionCounter interface {
	AgentCount() int
	SupervisorCount() int
}

// ActiveCallLister lists the ids of active calls
type ActiveCallLister interface {
	ActiveIDs() []string
}

// DirectoryReloader reloads the supervisor directory on demand
type DirectoryReloader interface {
	Reload(ctx context.Context) error
}

// DirectorySizer reports the number of mapped extensions
type DirectorySizer interface {
	Len() int
}

// StatusResponse is the payload of GET /api/admin/status
type StatusResponse struct {
	AgentConnections      int       `json:"agentConnections"`
	SupervisorConnections int       `json:"supervisorConnections"`
	ActiveCalls           int       `json:"activeCalls"`
	DirectoryEntries      int       `json:"directoryEntries"`
	Timestamp             time.Time `json:"timestamp"`
}

// AdminHandler serves operator endpoints. Routes must be wrapped in auth.RequireRole(auth.RoleAdmin).
type AdminHandler struct {
	connections ConnectionCounter
	calls       ActiveCallLister
	reloader    DirectoryReloader
	directory   DirectorySizer
	logger      zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(connections ConnectionCounter, calls ActiveCallLister, reloader DirectoryReloader, directory DirectorySizer, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		connections: connections,
		calls:       calls,
		reloader:    reloader,
		directory:   directory,
		logger:      logger.With().Str("component", "admin_handler").Logger(),
	}
}

// Status handles GET /api/admin/status
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatusResponse{
		AgentConnections:      h.connections.AgentCount(),
		SupervisorConnections: h.connections.SupervisorCount(),
		ActiveCalls:           len(h.calls.ActiveIDs()),
		DirectoryEntries:      h.directory.Len(),
		Timestamp:             time.Now(),
	})
}

// ReloadDirectory handles POST /api/admin/directory/reload
func (h *AdminHandler) ReloadDirectory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.reloader.Reload(ctx); err != nil {
		h.logger.Error().Err(err).Msg("directory reload failed")
		http.Error(w, `{"error":"directory reload failed"}`, http.StatusBadGateway)
		return
	}

	entries := h.directory.Len()
	h.logger.Info().Int("entries", entries).Msg("directory reloaded via API")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"entries": entries})
}
