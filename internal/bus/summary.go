package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// AgentSender is the subset of the session registry the forwarder needs
type AgentSender interface {
	SendToAgent(agentID string, message []byte) bool
}

// ForwardSummaries returns a SummaryHandler that pushes each summary to the
// agent's UI as a "summary" message
func ForwardSummaries(sender AgentSender, logger zerolog.Logger) SummaryHandler {
	logger = logger.With().Str("component", "summary_forwarder").Logger()

	return func(_ context.Context, event types.SummaryEvent) {
		agentID := types.NormalizeID(event.AgentID)
		if agentID == "" {
			logger.Debug().Str("call_id", event.CallID).Msg("summary without agent_id dropped")
			return
		}

		keywords := event.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		data, err := json.Marshal(types.SummaryMessage{
			Type:      types.MsgTypeSummary,
			CallID:    event.CallID,
			Summary:   event.Summary,
			Keywords:  keywords,
			Sentiment: event.SentimentScore,
			Timestamp: time.Now(),
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to marshal summary message")
			return
		}

		if !sender.SendToAgent(agentID, data) {
			logger.Debug().
				Str("agent_id", agentID).
				Str("call_id", event.CallID).
				Msg("agent not connected, summary dropped")
		}
	}
}
