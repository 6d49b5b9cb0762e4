package event

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/calls"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/pipeline"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds one posted utterance
const maxBodyBytes = 64 * 1024

// Processor is the subset of the transcript pipeline the receiver needs
type Processor interface {
	ProcessFinal(ctx context.Context, callID, agentID string, speaker types.Speaker, text string) (types.TranscriptEntry, error)
	ProcessPartial(callID, agentID string, speaker types.Speaker, text string)
}

// Utterance is posted by upstream recognizers that run their own speech-to-text
type Utterance struct {
	CallID  string `json:"call_id"`
	AgentID string `json:"agent_id"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Final   *bool  `json:"final,omitempty"` // defaults to true
}

// Receiver accepts utterances over HTTP and feeds them into the pipeline
type Receiver struct {
	processor    Processor
	logger       zerolog.Logger
	received     int64
	lastReceived time.Time
	mu           sync.RWMutex
}

// NewReceiver creates a new utterance receiver
func NewReceiver(processor Processor, logger zerolog.Logger) *Receiver {
	return &Receiver{
		processor: processor,
		logger:    logger.With().Str("component", "utterance_receiver").Logger(),
	}
}

// HandleUtterance handles POST /internal/transcripts
func (r *Receiver) HandleUtterance(w http.ResponseWriter, req *http.Request) {
	m := metrics.Get()

	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var u Utterance
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(&u); err != nil {
		r.logger.Debug().Err(err).Msg("failed to decode utterance")
		m.RecordIngest("invalid")
		http.Error(w, "invalid utterance", http.StatusBadRequest)
		return
	}

	callID := strings.TrimSpace(u.CallID)
	agentID := types.NormalizeID(u.AgentID)
	speaker := types.ParseSpeaker(u.Speaker)
	if callID == "" || agentID == "" {
		m.RecordIngest("invalid")
		http.Error(w, "call_id and agent_id are required", http.StatusBadRequest)
		return
	}

	atomic.AddInt64(&r.received, 1)
	r.mu.Lock()
	r.lastReceived = time.Now()
	r.mu.Unlock()

	if u.Final != nil && !*u.Final {
		if speaker == types.SpeakerUnknown {
			m.RecordIngest("invalid")
			http.Error(w, "speaker must be Agent or Customer", http.StatusBadRequest)
			return
		}
		r.processor.ProcessPartial(callID, agentID, speaker, u.Text)
		m.RecordIngest("ok")
		w.WriteHeader(http.StatusAccepted)
		return
	}

	entry, err := r.processor.ProcessFinal(req.Context(), callID, agentID, speaker, u.Text)
	switch {
	case errors.Is(err, pipeline.ErrEmptyText), errors.Is(err, pipeline.ErrUnknownSpeaker):
		m.RecordIngest("invalid")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, calls.ErrCallEnded):
		m.RecordIngest("rejected")
		http.Error(w, "call already ended", http.StatusConflict)
		return
	case err != nil:
		m.RecordIngest("rejected")
		r.logger.Error().Err(err).Str("call_id", callID).Msg("failed to process utterance")
		http.Error(w, "failed to process utterance", http.StatusInternalServerError)
		return
	}
	m.RecordIngest("ok")

	// Log periodically
	if count := atomic.LoadInt64(&r.received); count%1000 == 0 {
		r.logger.Info().Int64("total_received", count).Msg("utterances received")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// GetStats returns receiver statistics
func (r *Receiver) GetStats(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	lastReceived := r.lastReceived
	r.mu.RUnlock()

	stats := map[string]interface{}{
		"utterances_received": atomic.LoadInt64(&r.received),
		"last_received":       lastReceived,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
