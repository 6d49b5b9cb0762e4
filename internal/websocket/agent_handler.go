package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/calls"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const commandTimeout = 10 * time.Second

// CallEnder ends calls on behalf of UI commands
type CallEnder interface {
	EndCall(ctx context.Context, callID, reason string) (types.Call, error)
}

// AgentHandler serves agent transcript UI connections
type AgentHandler struct {
	hub      *Hub
	calls    CallEnder
	timeouts Timeouts
	logger   zerolog.Logger
}

// NewAgentHandler creates a new AgentHandler
func NewAgentHandler(hub *Hub, ender CallEnder, timeouts Timeouts, logger zerolog.Logger) *AgentHandler {
	return &AgentHandler{
		hub:      hub,
		calls:    ender,
		timeouts: timeouts,
		logger:   logger.With().Str("component", "agent_ui").Logger(),
	}
}

// Serve registers the connection under agentID and starts its pumps
func (h *AgentHandler) Serve(conn *websocket.Conn, agentID string) {
	client := NewClient(h.hub, conn, RoleAgent, agentID, h.timeouts, h.logger)
	client.onMessage = func(message []byte) {
		h.handleMessage(client, message)
	}

	h.hub.Register(client)

	if data, err := json.Marshal(types.StatusMessage{
		Type:    types.MsgTypeStatus,
		Status:  "connected",
		Message: "Connected to realtime service",
	}); err == nil {
		client.safeSend(data)
	}

	client.Start()
}

// handleMessage processes incoming commands from the agent UI
func (h *AgentHandler) handleMessage(client *Client, message []byte) {
	cmd, err := types.ParseAgentCommand(message)
	if err != nil {
		client.logger.Debug().Err(err).Msg("ignoring agent message")
		return
	}

	switch cmd.Command {
	case "end_call":
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		_, err := h.calls.EndCall(ctx, cmd.CallID, calls.ReasonManual)
		switch {
		case err == nil:
			client.logger.Info().Str("call_id", cmd.CallID).Msg("call ended by agent")
		case errors.Is(err, calls.ErrCallNotFound), errors.Is(err, calls.ErrCallEnded):
			client.logger.Debug().Err(err).Str("call_id", cmd.CallID).Msg("end_call ignored")
		default:
			client.logger.Error().Err(err).Str("call_id", cmd.CallID).Msg("failed to end call")
		}
	}
}
