package sentiment

import (
	"context"
	"testing"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicon_Labels(t *testing.T) {
	l := NewLexicon()

	tests := []struct {
		text string
		want types.SentimentLabel
	}{
		{"The service was good", types.SentimentPositive},
		{"Thanks, that was really helpful", types.SentimentPositive},
		{"This is terrible, my internet connection keeps dropping", types.SentimentNegative},
		{"I am really angry about this", types.SentimentNegative},
		{"I am calling about my invoice number", types.SentimentNeutral},
		{"", types.SentimentNeutral},
		{"   ", types.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			score, err := l.Score(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, types.LabelFor(score), "score %.3f", score)
			assert.GreaterOrEqual(t, score, -1.0)
			assert.LessOrEqual(t, score, 1.0)
		})
	}
}

func TestLexicon_Modifiers(t *testing.T) {
	l := NewLexicon()
	base := l.Compound("the service was good")

	assert.Greater(t, l.Compound("the service was very good"), base, "booster")
	assert.Greater(t, l.Compound("the service was GOOD"), base, "caps emphasis")
	assert.Greater(t, l.Compound("the service was good!!"), base, "exclamation")
	assert.Less(t, l.Compound("the service was not good"), 0.0, "negation flips")
	assert.Less(t, l.Compound("the agent was good but the wait was terrible"), 0.0, "clause after but dominates")
}

func TestLexicon_ExclamationOnlyIsNeutral(t *testing.T) {
	assert.Equal(t, 0.0, NewLexicon().Compound("!!!"))
}
