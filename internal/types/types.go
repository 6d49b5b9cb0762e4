package types

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
)

// Label thresholds on the compound sentiment score
const (
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// NormalizeID trims and case-folds an agent, extension or supervisor identifier.
// Every lookup key in the service goes through this function.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return cases.Fold().String(id)
}

// LabelFor classifies a compound score
func LabelFor(score float64) SentimentLabel {
	switch {
	case score >= PositiveThreshold:
		return SentimentPositive
	case score <= NegativeThreshold:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// NewSentiment rounds the score to 3 decimals and attaches its label
func NewSentiment(score float64) Sentiment {
	score = Round(score, 3)
	return Sentiment{Score: score, Label: LabelFor(score)}
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
