package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/keyphrase"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/sentiment"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyText      = errors.New("empty utterance")
	ErrUnknownSpeaker = errors.New("speaker is not Agent or Customer")
)

const publishTimeout = 5 * time.Second

// CallTracker is the subset of the call manager the pipeline needs
type CallTracker interface {
	Ensure(callID, agentID string) (types.Call, bool)
	Append(callID string, entry types.TranscriptEntry) (types.Call, error)
}

// AlertObserver receives customer entries for streak tracking
type AlertObserver interface {
	Observe(ctx context.Context, call types.Call, entry types.TranscriptEntry) (*types.SupervisorAlert, error)
}

// TranscriptPublisher is the subset of the bus the pipeline needs
type TranscriptPublisher interface {
	PublishTranscript(ctx context.Context, event types.TranscriptEvent) error
}

// AgentSender sends messages to connected agent UIs
type AgentSender interface {
	SendToAgent(agentID string, message []byte) bool
}

// Pipeline turns recognized utterances into annotated transcript entries
// and fans them out to the alert engine, the bus and the agent UI.
type Pipeline struct {
	calls     CallTracker
	analyzer  sentiment.Analyzer
	extractor keyphrase.Extractor
	alerts    AlertObserver
	publisher TranscriptPublisher
	sender    AgentSender
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a pipeline
func New(calls CallTracker, analyzer sentiment.Analyzer, extractor keyphrase.Extractor, alerts AlertObserver, publisher TranscriptPublisher, sender AgentSender, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		calls:     calls,
		analyzer:  analyzer,
		extractor: extractor,
		alerts:    alerts,
		publisher: publisher,
		sender:    sender,
		logger:    logger.With().Str("component", "pipeline").Logger(),
		now:       time.Now,
	}
}

// ProcessFinal scores, stores and distributes one final utterance. The
// call is created when unseen.
func (p *Pipeline) ProcessFinal(ctx context.Context, callID, agentID string, speaker types.Speaker, text string) (types.TranscriptEntry, error) {
	text, err := validate(speaker, text)
	if err != nil {
		return types.TranscriptEntry{}, err
	}
	p.calls.Ensure(callID, agentID)
	return p.process(ctx, callID, agentID, speaker, text)
}

// AppendFinal is ProcessFinal for a call that must already exist. A call
// that was re-keyed or purged meanwhile yields calls.ErrCallNotFound.
func (p *Pipeline) AppendFinal(ctx context.Context, callID, agentID string, speaker types.Speaker, text string) (types.TranscriptEntry, error) {
	text, err := validate(speaker, text)
	if err != nil {
		return types.TranscriptEntry{}, err
	}
	return p.process(ctx, callID, agentID, speaker, text)
}

func validate(speaker types.Speaker, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyText
	}
	if speaker != types.SpeakerAgent && speaker != types.SpeakerCustomer {
		return "", ErrUnknownSpeaker
	}
	return text, nil
}

func (p *Pipeline) process(ctx context.Context, callID, agentID string, speaker types.Speaker, text string) (types.TranscriptEntry, error) {
	started := time.Now()
	score, err := p.analyzer.Score(ctx, text)
	if err != nil {
		p.logger.Error().Err(err).Str("call_id", callID).Msg("sentiment analysis failed, using neutral score")
		score = 0
	}
	phrases := p.extract(ctx, callID, text)
	took := time.Since(started)

	entry := types.TranscriptEntry{
		Text:           text,
		Sentiment:      types.NewSentiment(score),
		Keyphrases:     phrases,
		Speaker:        speaker,
		Timestamp:      p.now(),
		ProcessingTime: types.Round(took.Seconds(), 3),
	}

	call, err := p.calls.Append(callID, entry)
	if err != nil {
		return types.TranscriptEntry{}, fmt.Errorf("failed to append transcript: %w", err)
	}
	metrics.Get().RecordTranscript(string(speaker), string(entry.Sentiment.Label), took)

	live := p.extract(ctx, callID, call.MergedText())

	if speaker == types.SpeakerCustomer {
		if _, err := p.alerts.Observe(ctx, call, entry); err != nil {
			p.logger.Error().Err(err).Str("call_id", callID).Msg("alert evaluation failed")
		}
	}

	p.publish(ctx, call, entry, live)
	p.push(call, entry, live)

	p.logger.Debug().
		Str("call_id", callID).
		Str("agent_id", agentID).
		Str("speaker", string(speaker)).
		Float64("sentiment", entry.Sentiment.Score).
		Dur("took", took).
		Msg("transcript processed")

	return entry, nil
}

// ProcessPartial forwards an interim hypothesis to the agent UI. Nothing is scored or stored.
func (p *Pipeline) ProcessPartial(callID, agentID string, speaker types.Speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	data, err := json.Marshal(types.TranscriptMessage{
		Type:        types.MsgTypeTranscript,
		AgentID:     agentID,
		CallID:      callID,
		Speaker:     speaker,
		Final:       "",
		Partial:     text,
		MessageType: "partial",
		Timestamp:   p.now(),
	})
	if err != nil {
		return
	}
	metrics.Get().RecordPartial()
	p.sender.SendToAgent(agentID, data)
}

func (p *Pipeline) extract(ctx context.Context, callID, text string) []string {
	phrases, err := p.extractor.Extract(ctx, text)
	if err != nil {
		p.logger.Warn().Err(err).Str("call_id", callID).Msg("keyphrase extraction failed")
		return []string{}
	}
	return phrases
}

// publish emits the bus event in the background; the connection's context
// does not bound it.
func (p *Pipeline) publish(ctx context.Context, call types.Call, entry types.TranscriptEntry, live []string) {
	event := types.TranscriptEvent{
		CallID:         call.CallID,
		AgentID:        call.AgentID,
		CustomerID:     call.CustomerID,
		Speaker:        entry.Speaker,
		Text:           entry.Text,
		Sentiment:      entry.Sentiment,
		Keyphrases:     entry.Keyphrases,
		LiveKeyphrases: live,
		MessageCount:   call.MessageCount(),
		Timestamp:      entry.Timestamp,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := p.publisher.PublishTranscript(ctx, event); err != nil {
			p.logger.Error().Err(err).Str("call_id", event.CallID).Msg("failed to publish transcript")
		}
	}()
}

func (p *Pipeline) push(call types.Call, entry types.TranscriptEntry, live []string) {
	sentiment := entry.Sentiment
	data, err := json.Marshal(types.TranscriptMessage{
		Type:           types.MsgTypeTranscript,
		AgentID:        call.AgentID,
		CallID:         call.CallID,
		Speaker:        entry.Speaker,
		Final:          entry.Text,
		Partial:        "",
		MessageType:    "final",
		Sentiment:      &sentiment,
		Keyphrases:     entry.Keyphrases,
		LiveKeyphrases: live,
		Timestamp:      entry.Timestamp,
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal transcript message")
		return
	}
	if !p.sender.SendToAgent(call.AgentID, data) {
		p.logger.Debug().Str("agent_id", call.AgentID).Msg("agent UI not connected")
	}
}
