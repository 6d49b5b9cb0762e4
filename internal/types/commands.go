package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCommand is returned when an inbound command fails validation
var ErrInvalidCommand = errors.New("invalid command")

// AgentCommand is sent by the agent transcript UI
type AgentCommand struct {
	Command string `json:"command"` // "end_call"
	CallID  string `json:"callId"`
}

// ParseAgentCommand decodes and validates an agent UI command
func ParseAgentCommand(data []byte) (AgentCommand, error) {
	var cmd AgentCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	switch cmd.Command {
	case "end_call":
		if strings.TrimSpace(cmd.CallID) == "" {
			return cmd, fmt.Errorf("%w: end_call requires callId", ErrInvalidCommand)
		}
	default:
		return cmd, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, cmd.Command)
	}
	return cmd, nil
}

// SupervisorCommandType enumerates commands accepted from supervisor UIs
type SupervisorCommandType string

const (
	SupervisorClearAlerts     SupervisorCommandType = "clear_alerts"
	SupervisorAcknowledge     SupervisorCommandType = "acknowledge_alert"
	SupervisorEndCall         SupervisorCommandType = "end_call"
	SupervisorGenerateSummary SupervisorCommandType = "generate_summary"
)

// SupervisorCommand is sent by the supervisor UI
type SupervisorCommand struct {
	Type      SupervisorCommandType `json:"type"`
	AlertID   int64                 `json:"alert_id,omitempty"`
	CallID    string                `json:"call_id,omitempty"`
	AgentID   string                `json:"agent_id,omitempty"`
	Extension string                `json:"extension,omitempty"`
}

// Agent returns agent_id, falling back to extension
func (c SupervisorCommand) Agent() string {
	if c.AgentID != "" {
		return c.AgentID
	}
	return c.Extension
}

// ParseSupervisorCommand decodes and validates a supervisor UI command
func ParseSupervisorCommand(data []byte) (SupervisorCommand, error) {
	var cmd SupervisorCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	switch cmd.Type {
	case SupervisorClearAlerts:
	case SupervisorAcknowledge:
		if cmd.AlertID <= 0 {
			return cmd, fmt.Errorf("%w: acknowledge_alert requires alert_id", ErrInvalidCommand)
		}
	case SupervisorEndCall, SupervisorGenerateSummary:
		if strings.TrimSpace(cmd.CallID) == "" {
			return cmd, fmt.Errorf("%w: %s requires call_id", ErrInvalidCommand, cmd.Type)
		}
	default:
		return cmd, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, cmd.Type)
	}
	return cmd, nil
}

// AudioControlKind classifies a JSON text frame received on an audio leg
type AudioControlKind int

const (
	AudioControlNone AudioControlKind = iota
	AudioControlMetadata
	AudioControlEvent
)

// AudioControl is a JSON control frame on an audio leg: either a metadata
// (or config) block or a named event such as "call_end".
type AudioControl struct {
	Kind     AudioControlKind
	Metadata map[string]string
	Event    string
}

// ParseAudioControl decodes a text frame. ok is false when the frame is not a
// JSON object, in which case the caller treats it as a plain utterance.
func ParseAudioControl(data []byte) (ctrl AudioControl, ok bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ctrl, false
	}

	block, hasMeta := raw["metadata"]
	if !hasMeta {
		block, hasMeta = raw["config"]
	}
	if hasMeta {
		ctrl.Kind = AudioControlMetadata
		ctrl.Metadata = flattenMetadata(block)
		return ctrl, true
	}

	if ev, ok := raw["event"]; ok {
		var name string
		if err := json.Unmarshal(ev, &name); err == nil {
			ctrl.Kind = AudioControlEvent
			ctrl.Event = name
		}
	}
	return ctrl, true
}

// flattenMetadata keeps scalar values of a metadata object as strings
func flattenMetadata(block json.RawMessage) map[string]string {
	var values map[string]interface{}
	out := make(map[string]string)
	if err := json.Unmarshal(block, &values); err != nil {
		return out
	}
	for k, v := range values {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	return out
}

// TranscriptEvent is published to the transcript topic for every final utterance
type TranscriptEvent struct {
	CallID         string    `json:"call_id"`
	AgentID        string    `json:"agent_id"`
	CustomerID     string    `json:"customer_id,omitempty"`
	Speaker        Speaker   `json:"speaker"`
	Text           string    `json:"text"`
	Sentiment      Sentiment `json:"sentiment"`
	Keyphrases     []string  `json:"keyphrases"`
	LiveKeyphrases []string  `json:"live_keyphrases,omitempty"`
	MessageCount   int       `json:"message_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// CallEndEvent is published to the transcript topic once per call
type CallEndEvent struct {
	CallID        string                        `json:"call_id"`
	AgentID       string                        `json:"agent_id"`
	CustomerID    string                        `json:"customer_id,omitempty"`
	Status        CallStatus                    `json:"status"`
	Reason        string                        `json:"reason"`
	TotalMessages int                           `json:"total_messages"`
	QAScore       *float64                      `json:"qa_score,omitempty"`
	Transcripts   map[Speaker][]TranscriptEntry `json:"transcripts"`
	Timestamp     time.Time                     `json:"timestamp"`
}

// SummaryEvent is consumed from the summary topic
type SummaryEvent struct {
	CallID         string   `json:"call_id"`
	AgentID        string   `json:"agent_id"`
	Summary        string   `json:"summary"`
	Keywords       []string `json:"keywords"`
	SentimentScore float64  `json:"sentiment_score"`
}
