package qa

import (
	"math"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// DefaultThreshold is the overall score below which supervisors are notified
const DefaultThreshold = 80.0

// Component weights of the overall score
const (
	weightSentiment       = 0.25
	weightResolution      = 0.20
	weightProfessionalism = 0.20
	weightEngagement      = 0.15
	weightCompliance      = 0.10
	weightEfficiency      = 0.10
)

const neutralScore = 50.0

var (
	resolutionPhrases = []string{"resolved", "fixed", "thank you"}
	compliancePhrases = []string{"verify", "confirm", "security"}
)

// Score computes the QA breakdown of a call. It is a pure function of the
// transcripts and the call duration.
func Score(call types.Call, duration time.Duration) types.QABreakdown {
	customer := call.Transcripts[types.SpeakerCustomer]
	agent := call.Transcripts[types.SpeakerAgent]

	customerText := joinLower(customer)
	agentText := joinLower(agent)

	b := types.QABreakdown{
		Sentiment:       sentimentScore(customer),
		Resolution:      resolutionScore(customerText),
		Professionalism: professionalismScore(agentText),
		Engagement:      engagementScore(len(customer), len(agent)),
		Compliance:      complianceScore(agentText),
		Efficiency:      efficiencyScore(len(customer)+len(agent), duration),
	}

	b.Sentiment = finish(b.Sentiment)
	b.Resolution = finish(b.Resolution)
	b.Professionalism = finish(b.Professionalism)
	b.Engagement = finish(b.Engagement)
	b.Compliance = finish(b.Compliance)
	b.Efficiency = finish(b.Efficiency)
	return b
}

// Overall returns the weighted score in [0,100], rounded to 2 decimals
func Overall(b types.QABreakdown) float64 {
	total := weightSentiment*b.Sentiment +
		weightResolution*b.Resolution +
		weightProfessionalism*b.Professionalism +
		weightEngagement*b.Engagement +
		weightCompliance*b.Compliance +
		weightEfficiency*b.Efficiency
	return types.Round(clamp(total), 2)
}

func sentimentScore(entries []types.TranscriptEntry) float64 {
	if len(entries) == 0 {
		return neutralScore
	}
	var sum float64
	for _, e := range entries {
		sum += e.Sentiment.Score
	}
	return (sum/float64(len(entries)) + 1) * 50
}

func resolutionScore(customerText string) float64 {
	if customerText == "" {
		return neutralScore
	}
	if containsAny(customerText, resolutionPhrases) {
		return 85
	}
	return 40
}

func professionalismScore(agentText string) float64 {
	if agentText == "" {
		return neutralScore
	}
	score := 50.0
	if strings.Contains(agentText, "please") {
		score += 15
	}
	if strings.Contains(agentText, "thank you") {
		score += 15
	}
	if strings.Contains(agentText, "sorry") || strings.Contains(agentText, "apolog") {
		score += 10
	}
	return math.Min(score, 100)
}

func engagementScore(customerCount, agentCount int) float64 {
	if customerCount == 0 || agentCount == 0 {
		return neutralScore
	}
	return math.Min(100, 50*float64(customerCount)/float64(agentCount))
}

func complianceScore(agentText string) float64 {
	if agentText == "" {
		return neutralScore
	}
	if containsAny(agentText, compliancePhrases) {
		return 90
	}
	return 50
}

// efficiencyScore rewards calls of three to eight minutes
func efficiencyScore(messages int, duration time.Duration) float64 {
	if messages == 0 {
		return neutralScore
	}
	minutes := duration.Minutes()
	switch {
	case minutes < 3:
		return 60
	case minutes <= 8:
		return 100
	default:
		return 40
	}
}

func joinLower(entries []types.TranscriptEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if t := strings.TrimSpace(e.Text); t != "" {
			parts = append(parts, strings.ToLower(t))
		}
	}
	return strings.Join(parts, " ")
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func finish(v float64) float64 {
	return types.Round(clamp(v), 2)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
