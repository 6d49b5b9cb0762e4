package types

import (
	"sort"
	"strings"
	"time"
)

// CallStatus represents the lifecycle state of a call
type CallStatus string

const (
	CallStatusActive CallStatus = "active"
	CallStatusEnded  CallStatus = "ended"
)

// Speaker identifies one leg of a two-party call
type Speaker string

const (
	SpeakerAgent    Speaker = "Agent"
	SpeakerCustomer Speaker = "Customer"
	SpeakerUnknown  Speaker = "Unknown"
)

// Speakers lists the roles that carry transcripts, in display order
var Speakers = []Speaker{SpeakerAgent, SpeakerCustomer}

// ParseSpeaker maps a free-form leg name to a Speaker
func ParseSpeaker(s string) Speaker {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agent":
		return SpeakerAgent
	case "customer":
		return SpeakerCustomer
	default:
		return SpeakerUnknown
	}
}

// SentimentLabel is the coarse classification of a sentiment score
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Sentiment is a compound score in [-1,1] and its label
type Sentiment struct {
	Score float64        `json:"score"`
	Label SentimentLabel `json:"label"`
}

// TranscriptEntry is one finalized utterance. It is never mutated after creation.
type TranscriptEntry struct {
	Text           string    `json:"text"`
	Sentiment      Sentiment `json:"sentiment"`
	Keyphrases     []string  `json:"keyphrases"`
	Speaker        Speaker   `json:"speaker"`
	Timestamp      time.Time `json:"timestamp"`
	ProcessingTime float64   `json:"processingTime"` // seconds
}

// Call is the in-memory state of a monitored call
type Call struct {
	CallID       string                        `json:"callId"`
	AgentID      string                        `json:"agentId"`
	CustomerID   string                        `json:"customerId,omitempty"`
	Extension    string                        `json:"extension,omitempty"`
	Status       CallStatus                    `json:"status"`
	StartTime    time.Time                     `json:"startTime"`
	LastActivity time.Time                     `json:"lastActivity"`
	EndTime      *time.Time                    `json:"endTime,omitempty"`
	EndReason    string                        `json:"endReason,omitempty"`
	Metadata     map[string]string             `json:"metadata,omitempty"`
	Transcripts  map[Speaker][]TranscriptEntry `json:"transcripts"`
}

// NewCall creates an active call with empty transcript lists
func NewCall(callID, agentID string, now time.Time) *Call {
	return &Call{
		CallID:       callID,
		AgentID:      agentID,
		Extension:    agentID,
		Status:       CallStatusActive,
		StartTime:    now,
		LastActivity: now,
		Metadata:     make(map[string]string),
		Transcripts: map[Speaker][]TranscriptEntry{
			SpeakerAgent:    {},
			SpeakerCustomer: {},
		},
	}
}

// Clone returns a deep copy that shares nothing mutable with c
func (c *Call) Clone() Call {
	out := *c
	if c.EndTime != nil {
		t := *c.EndTime
		out.EndTime = &t
	}
	out.Metadata = make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		out.Metadata[k] = v
	}
	out.Transcripts = make(map[Speaker][]TranscriptEntry, len(c.Transcripts))
	for speaker, entries := range c.Transcripts {
		copied := make([]TranscriptEntry, len(entries))
		copy(copied, entries)
		out.Transcripts[speaker] = copied
	}
	return out
}

// IsActive reports whether the call has not ended yet
func (c *Call) IsActive() bool {
	return c.Status == CallStatusActive
}

// MessageCount returns the number of finalized entries across all speakers
func (c *Call) MessageCount() int {
	n := 0
	for _, entries := range c.Transcripts {
		n += len(entries)
	}
	return n
}

// Last returns up to n most recent entries for the speaker, oldest first
func (c *Call) Last(speaker Speaker, n int) []TranscriptEntry {
	entries := c.Transcripts[speaker]
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]TranscriptEntry, len(entries))
	copy(out, entries)
	return out
}

// Recent merges the last n entries of each speaker and orders them by timestamp
func (c *Call) Recent(n int) []TranscriptEntry {
	merged := append(c.Last(SpeakerCustomer, n), c.Last(SpeakerAgent, n)...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// MergedText joins every finalized utterance of the call in timestamp order
func (c *Call) MergedText() string {
	var all []TranscriptEntry
	for _, speaker := range Speakers {
		all = append(all, c.Transcripts[speaker]...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	parts := make([]string, 0, len(all))
	for _, e := range all {
		parts = append(parts, e.Text)
	}
	return strings.Join(parts, " ")
}

// Duration returns the elapsed time between start and end (or now for active calls)
func (c *Call) Duration(now time.Time) time.Duration {
	if c.EndTime != nil {
		return c.EndTime.Sub(c.StartTime)
	}
	return now.Sub(c.StartTime)
}
