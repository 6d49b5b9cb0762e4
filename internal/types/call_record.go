package types

import "time"

// CallSnapshot is the persisted view of a call for DynamoDB and Redis
type CallSnapshot struct {
	AgentID          string            `json:"agentId" dynamodbav:"AgentID"` // partition key
	CallID           string            `json:"callId" dynamodbav:"CallID"`   // sort key
	DateKey          string            `json:"dateKey" dynamodbav:"DateKey"` // YYYY-MM-DD
	CustomerID       string            `json:"customerId" dynamodbav:"CustomerID"`
	Status           string            `json:"status" dynamodbav:"Status"`
	StartTime        string            `json:"startTime" dynamodbav:"StartTime"` // RFC3339
	EndTime          string            `json:"endTime" dynamodbav:"EndTime"`     // RFC3339, empty while active
	EndReason        string            `json:"endReason" dynamodbav:"EndReason"`
	DurationSecs     float64           `json:"durationSecs" dynamodbav:"DurationSecs"`
	CustomerMessages int               `json:"customerMessages" dynamodbav:"CustomerMessages"`
	AgentMessages    int               `json:"agentMessages" dynamodbav:"AgentMessages"`
	QAScore          float64           `json:"qaScore" dynamodbav:"QAScore"`
	Metadata         map[string]string `json:"metadata" dynamodbav:"Metadata"`
	Transcripts      []TranscriptEntry `json:"transcripts" dynamodbav:"Transcripts"`
}

// SnapshotOf builds a CallSnapshot from a call and its QA score
func SnapshotOf(c Call, qaScore float64, now time.Time) CallSnapshot {
	snap := CallSnapshot{
		AgentID:          c.AgentID,
		CallID:           c.CallID,
		DateKey:          c.StartTime.UTC().Format("2006-01-02"),
		CustomerID:       c.CustomerID,
		Status:           string(c.Status),
		StartTime:        c.StartTime.UTC().Format(time.RFC3339),
		EndReason:        c.EndReason,
		DurationSecs:     c.Duration(now).Seconds(),
		CustomerMessages: len(c.Transcripts[SpeakerCustomer]),
		AgentMessages:    len(c.Transcripts[SpeakerAgent]),
		QAScore:          qaScore,
		Metadata:         c.Metadata,
	}
	if c.EndTime != nil {
		snap.EndTime = c.EndTime.UTC().Format(time.RFC3339)
	}
	for _, speaker := range Speakers {
		snap.Transcripts = append(snap.Transcripts, c.Transcripts[speaker]...)
	}
	return snap
}
