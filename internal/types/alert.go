package types

import "time"

// AlertStatus represents the review state of a supervisor alert
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
)

// AlertTypeNegativeStreak is the alert_type stored for sentiment escalations
const AlertTypeNegativeStreak = "negative_streak"

// SupervisorAlert is a persisted escalation raised by the alert engine
type SupervisorAlert struct {
	AlertID              int64             `json:"alertId"`
	CallID               string            `json:"callId"`
	AgentID              string            `json:"agentId"`
	SupervisorID         string            `json:"supervisorId,omitempty"`
	AlertType            string            `json:"alertType"`
	StreakCount          int               `json:"streakCount"`
	Reason               string            `json:"reason"`
	AvgCustomerSentiment float64           `json:"avgCustomerSentiment"`
	RecentTranscripts    []TranscriptEntry `json:"recentTranscripts"`
	Metadata             AlertMetadata     `json:"metadata"`
	Status               AlertStatus       `json:"status"`
	CreatedAt            time.Time         `json:"createdAt"`
	AcknowledgedBy       *string           `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt       *time.Time        `json:"acknowledgedAt,omitempty"`
}

// AlertMetadata summarizes the call at the moment the alert fired
type AlertMetadata struct {
	TotalTranscripts int        `json:"total_transcripts"`
	CustomerMessages int        `json:"customer_messages"`
	AgentMessages    int        `json:"agent_messages"`
	CallStatus       CallStatus `json:"call_status"`
}

// QABreakdown holds the six component scores, each in [0,100]
type QABreakdown struct {
	Sentiment       float64 `json:"sentiment_score"`
	Resolution      float64 `json:"resolution_score"`
	Professionalism float64 `json:"professionalism_score"`
	Engagement      float64 `json:"engagement_score"`
	Compliance      float64 `json:"compliance_score"`
	Efficiency      float64 `json:"efficiency_score"`
}

// QAScoreRecord is written once per call when it ends
type QAScoreRecord struct {
	CallID       string      `json:"callId"`
	AgentID      string      `json:"agentId"`
	CustomerID   string      `json:"customerId,omitempty"`
	OverallScore float64     `json:"overallScore"`
	Breakdown    QABreakdown `json:"breakdown"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// SupervisorMapping is one extension -> supervisor row from the directory
type SupervisorMapping struct {
	Extension    string
	SupervisorID string
}
