package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/calls"
	"github.com/dennisdiepolder/monti/callmonitor/internal/storage"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// backlogPerSpeaker is how many recent utterances per speaker a newly
// connected supervisor receives for each active call
const backlogPerSpeaker = 20

// ExtensionLister lists the extensions a supervisor is responsible for
type ExtensionLister interface {
	ExtensionsFor(supervisorID string) []string
}

// CallLister returns the calls handled on a set of extensions
type CallLister interface {
	ForExtensions(extensions []string) []types.Call
}

// AlertAcknowledger marks stored alerts as handled
type AlertAcknowledger interface {
	AcknowledgeAlert(ctx context.Context, alertID int64, acknowledgedBy string) error
}

// SupervisorHandler serves supervisor UI connections
type SupervisorHandler struct {
	hub       *Hub
	directory ExtensionLister
	calls     CallLister
	ender     CallEnder
	alerts    AlertAcknowledger
	timeouts  Timeouts
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSupervisorHandler creates a new SupervisorHandler
func NewSupervisorHandler(hub *Hub, directory ExtensionLister, lister CallLister, ender CallEnder, alerts AlertAcknowledger, timeouts Timeouts, logger zerolog.Logger) *SupervisorHandler {
	return &SupervisorHandler{
		hub:       hub,
		directory: directory,
		calls:     lister,
		ender:     ender,
		alerts:    alerts,
		timeouts:  timeouts,
		logger:    logger.With().Str("component", "supervisor_ui").Logger(),
		now:       time.Now,
	}
}

// Serve registers the connection, replays the backlog and starts the pumps
func (h *SupervisorHandler) Serve(conn *websocket.Conn, supervisorID string) {
	client := NewClient(h.hub, conn, RoleSupervisor, supervisorID, h.timeouts, h.logger)
	client.onMessage = func(message []byte) {
		h.handleMessage(client, message)
	}

	h.hub.Register(client)

	extensions := h.directory.ExtensionsFor(supervisorID)
	if len(extensions) == 0 {
		client.logger.Warn().Msg("supervisor has no mapped extensions")
	}

	for _, msg := range h.greeting(supervisorID, extensions) {
		if !client.safeSend(msg) {
			client.logger.Warn().Msg("backlog truncated, send buffer full")
			break
		}
	}

	client.Start()
}

// greeting builds the connect message followed by the transcript backlog
func (h *SupervisorHandler) greeting(supervisorID string, extensions []string) [][]byte {
	var out [][]byte

	hello, err := json.Marshal(types.SupervisorConnected{
		Type:         types.MsgTypeSupervisorConnected,
		SupervisorID: supervisorID,
		Extensions:   extensions,
		Message:      fmt.Sprintf("Connected - monitoring %d extensions: %v", len(extensions), extensions),
		Timestamp:    h.now(),
	})
	if err != nil {
		return nil
	}
	out = append(out, hello)

	for _, call := range h.calls.ForExtensions(extensions) {
		if !call.IsActive() {
			continue
		}
		for _, speaker := range []types.Speaker{types.SpeakerCustomer, types.SpeakerAgent} {
			for _, entry := range call.Last(speaker, backlogPerSpeaker) {
				data, err := json.Marshal(types.BacklogTranscript{
					Type:      types.MsgTypeTranscript,
					CallID:    call.CallID,
					Extension: call.Extension,
					Speaker:   speaker,
					Final:     entry.Text,
					Sentiment: entry.Sentiment,
					Timestamp: entry.Timestamp,
				})
				if err != nil {
					continue
				}
				out = append(out, data)
			}
		}
	}
	return out
}

// handleMessage processes incoming commands from the supervisor UI
func (h *SupervisorHandler) handleMessage(client *Client, message []byte) {
	cmd, err := types.ParseSupervisorCommand(message)
	if err != nil {
		client.logger.Debug().Err(err).Msg("ignoring supervisor message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Type {
	case types.SupervisorClearAlerts:
		client.logger.Info().Msg("supervisor cleared alerts")

	case types.SupervisorAcknowledge:
		if err := h.alerts.AcknowledgeAlert(ctx, cmd.AlertID, client.id); err != nil {
			if errors.Is(err, storage.ErrAlertNotFound) {
				client.logger.Debug().Int64("alert_id", cmd.AlertID).Msg("alert not found or already acknowledged")
				return
			}
			client.logger.Error().Err(err).Int64("alert_id", cmd.AlertID).Msg("failed to acknowledge alert")
			return
		}
		data, err := json.Marshal(types.AlertAcknowledged{
			Type:      types.MsgTypeAlertAcknowledged,
			AlertID:   cmd.AlertID,
			Timestamp: h.now(),
		})
		if err == nil {
			client.safeSend(data)
		}

	case types.SupervisorEndCall:
		h.endCall(ctx, client, cmd, calls.ReasonSupervisorEnd)

	case types.SupervisorGenerateSummary:
		h.endCall(ctx, client, cmd, calls.ReasonSupervisorSummary)
	}
}

func (h *SupervisorHandler) endCall(ctx context.Context, client *Client, cmd types.SupervisorCommand, reason string) {
	_, err := h.ender.EndCall(ctx, cmd.CallID, reason)
	switch {
	case err == nil:
		client.logger.Info().
			Str("call_id", cmd.CallID).
			Str("agent_id", cmd.Agent()).
			Str("reason", reason).
			Msg("call ended by supervisor")
	case errors.Is(err, calls.ErrCallNotFound), errors.Is(err, calls.ErrCallEnded):
		client.logger.Debug().Err(err).Str("call_id", cmd.CallID).Msg("supervisor end ignored")
	default:
		client.logger.Error().Err(err).Str("call_id", cmd.CallID).Msg("failed to end call")
	}
}
