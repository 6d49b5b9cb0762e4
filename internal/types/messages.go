package types

import "time"

// Message types pushed to agent and supervisor UIs
const (
	MsgTypeTranscript          = "transcript"
	MsgTypeStatus              = "status"
	MsgTypeSummary             = "summary"
	MsgTypeSupervisorAlert     = "supervisor_alert"
	MsgTypeSupervisorConnected = "supervisor_connected"
	MsgTypeAlertAcknowledged   = "alert_acknowledged"
	MsgTypeCallEnded           = "call_ended"
)

// TranscriptMessage is pushed to the agent UI for every final or partial utterance
type TranscriptMessage struct {
	Type           string     `json:"type"` // "transcript"
	AgentID        string     `json:"agent_id"`
	CallID         string     `json:"call_id"`
	Speaker        Speaker    `json:"speaker"`
	Final          string     `json:"final"`
	Partial        string     `json:"partial"`
	MessageType    string     `json:"message_type"` // "final" or "partial"
	Sentiment      *Sentiment `json:"sentiment,omitempty"`
	Keyphrases     []string   `json:"keyphrases,omitempty"`
	LiveKeyphrases []string   `json:"live_keyphrases,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

// StatusMessage is sent to an agent UI right after it connects
type StatusMessage struct {
	Type    string `json:"type"` // "status"
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AgentAlertNotice is the lightweight escalation notice shown to the agent
type AgentAlertNotice struct {
	Type      string    `json:"type"` // "supervisor_alert"
	CallID    string    `json:"call_id"`
	Extension string    `json:"extension"`
	Reason    string    `json:"reason"`
	Streak    int       `json:"streak"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertTranscript is one line of the history attached to a supervisor alert
type AlertTranscript struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Sentiment Sentiment `json:"sentiment"`
	Timestamp time.Time `json:"timestamp"`
}

// SupervisorAlertMessage is the detailed escalation sent to the owning supervisor
type SupervisorAlertMessage struct {
	Type           string            `json:"type"` // "supervisor_alert"
	AlertID        int64             `json:"alert_id,omitempty"`
	CallID         string            `json:"call_id"`
	Extension      string            `json:"extension"`
	Reason         string            `json:"reason"`
	NegativeStreak int               `json:"negative_streak"`
	Transcripts    []AlertTranscript `json:"transcripts"`
	Timestamp      time.Time         `json:"timestamp"`
}

// QAAlertMessage is sent to the supervisor when a finished call scores below threshold
type QAAlertMessage struct {
	Type           string      `json:"type"` // "supervisor_alert"
	AlertCategory  string      `json:"alert_category"`
	CallID         string      `json:"call_id"`
	Extension      string      `json:"extension"`
	QAScore        float64     `json:"qa_score"`
	DetailedScores QABreakdown `json:"detailed_scores"`
	Reason         string      `json:"reason"`
	Timestamp      time.Time   `json:"timestamp"`
}

// SupervisorConnected greets a supervisor and lists the monitored extensions
type SupervisorConnected struct {
	Type         string    `json:"type"` // "supervisor_connected"
	SupervisorID string    `json:"supervisor_id"`
	Extensions   []string  `json:"extensions"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// BacklogTranscript replays a recent utterance to a newly connected supervisor
type BacklogTranscript struct {
	Type      string    `json:"type"` // "transcript"
	CallID    string    `json:"call_id"`
	Extension string    `json:"extension"`
	Speaker   Speaker   `json:"speaker"`
	Final     string    `json:"final"`
	Sentiment Sentiment `json:"sentiment"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertAcknowledged confirms an acknowledge_alert command
type AlertAcknowledged struct {
	Type      string    `json:"type"` // "alert_acknowledged"
	AlertID   int64     `json:"alert_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CallEndedMessage tells a UI that a call it is watching has ended
type CallEndedMessage struct {
	Type      string    `json:"type"` // "call_ended"
	CallID    string    `json:"call_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// SummaryMessage forwards an externally produced call summary to the agent UI
type SummaryMessage struct {
	Type      string    `json:"type"` // "summary"
	CallID    string    `json:"call_id"`
	Summary   string    `json:"summary"`
	Keywords  []string  `json:"keywords"`
	Sentiment float64   `json:"sentiment"`
	Timestamp time.Time `json:"timestamp"`
}
