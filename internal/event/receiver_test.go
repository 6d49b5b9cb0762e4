package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dennisdiepolder/monti/callmonitor/internal/calls"
	"github.com/dennisdiepolder/monti/callmonitor/internal/pipeline"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	finals   []string
	partials []string
	err      error
}

func (f *fakeProcessor) ProcessFinal(_ context.Context, callID, agentID string, speaker types.Speaker, text string) (types.TranscriptEntry, error) {
	if f.err != nil {
		return types.TranscriptEntry{}, f.err
	}
	if speaker == types.SpeakerUnknown {
		return types.TranscriptEntry{}, pipeline.ErrUnknownSpeaker
	}
	f.finals = append(f.finals, fmt.Sprintf("%s/%s/%s: %s", callID, agentID, speaker, text))
	return types.TranscriptEntry{Text: text, Speaker: speaker, Sentiment: types.NewSentiment(-0.5)}, nil
}

func (f *fakeProcessor) ProcessPartial(callID, agentID string, speaker types.Speaker, text string) {
	f.partials = append(f.partials, fmt.Sprintf("%s/%s/%s: %s", callID, agentID, speaker, text))
}

func post(r *Receiver, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.HandleUtterance(rec, httptest.NewRequest(http.MethodPost, "/internal/transcripts", strings.NewReader(body)))
	return rec
}

func TestHandleUtterance_Final(t *testing.T) {
	p := &fakeProcessor{}
	r := NewReceiver(p, zerolog.Nop())

	rec := post(r, `{"call_id":"c-1","agent_id":" 1001 ","speaker":"customer","text":"this is terrible"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"c-1/1001/Customer: this is terrible"}, p.finals)

	var entry types.TranscriptEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, types.SentimentNegative, entry.Sentiment.Label)
}

func TestHandleUtterance_Partial(t *testing.T) {
	p := &fakeProcessor{}
	r := NewReceiver(p, zerolog.Nop())

	rec := post(r, `{"call_id":"c-1","agent_id":"1001","speaker":"Agent","text":"let me che","final":false}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"c-1/1001/Agent: let me che"}, p.partials)
	assert.Empty(t, p.finals)

	rec = post(r, `{"call_id":"c-1","agent_id":"1001","speaker":"bot","text":"x","final":false}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUtterance_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed", `{`, nil, http.StatusBadRequest},
		{"missing call", `{"agent_id":"1001","speaker":"Agent","text":"hi"}`, nil, http.StatusBadRequest},
		{"missing agent", `{"call_id":"c-1","speaker":"Agent","text":"hi"}`, nil, http.StatusBadRequest},
		{"unknown speaker", `{"call_id":"c-1","agent_id":"1001","speaker":"bot","text":"hi"}`, nil, http.StatusBadRequest},
		{"empty text", `{"call_id":"c-1","agent_id":"1001","speaker":"Agent","text":""}`, pipeline.ErrEmptyText, http.StatusBadRequest},
		{"ended call", `{"call_id":"c-1","agent_id":"1001","speaker":"Agent","text":"hi"}`, fmt.Errorf("failed to append transcript: %w", calls.ErrCallEnded), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReceiver(&fakeProcessor{err: tt.err}, zerolog.Nop())
			assert.Equal(t, tt.status, post(r, tt.body).Code)
		})
	}
}

func TestHandleUtterance_MethodNotAllowed(t *testing.T) {
	r := NewReceiver(&fakeProcessor{}, zerolog.Nop())
	rec := httptest.NewRecorder()
	r.HandleUtterance(rec, httptest.NewRequest(http.MethodGet, "/internal/transcripts", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetStats(t *testing.T) {
	r := NewReceiver(&fakeProcessor{}, zerolog.Nop())
	post(r, `{"call_id":"c-1","agent_id":"1001","speaker":"Agent","text":"hello"}`)
	post(r, `{"call_id":"c-1","agent_id":"1001","speaker":"Customer","text":"hi"}`)

	rec := httptest.NewRecorder()
	r.GetStats(rec, httptest.NewRequest(http.MethodGet, "/internal/transcripts/stats", nil))

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, float64(2), stats["utterances_received"])
}
