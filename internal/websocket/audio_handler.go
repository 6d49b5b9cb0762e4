package websocket

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/calls"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/pipeline"
	"github.com/dennisdiepolder/monti/callmonitor/internal/stt"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// CallLifecycle is the subset of the call manager an audio leg drives
type CallLifecycle interface {
	Ensure(callID, agentID string) (types.Call, bool)
	Rekey(oldID, newID string) error
	UpdateIdentity(callID string, id calls.Identity) (types.Call, error)
	Touch(callID string)
	EndCall(ctx context.Context, callID, reason string) (types.Call, error)
}

// TranscriptProcessor turns recognized text into transcript entries. Audio
// legs only append to calls that exist; they never create one.
type TranscriptProcessor interface {
	AppendFinal(ctx context.Context, callID, agentID string, speaker types.Speaker, text string) (types.TranscriptEntry, error)
	ProcessPartial(callID, agentID string, speaker types.Speaker, text string)
}

// AudioOptions describes the audio format sent by the media gateway
type AudioOptions struct {
	SampleRate int
	Language   string
}

// AudioHandler serves one media-gateway connection per call leg
type AudioHandler struct {
	calls      CallLifecycle
	pipeline   TranscriptProcessor
	recognizer stt.Recognizer
	opts       AudioOptions
	timeouts   Timeouts
	logger     zerolog.Logger
}

// NewAudioHandler creates a new AudioHandler
func NewAudioHandler(lifecycle CallLifecycle, processor TranscriptProcessor, recognizer stt.Recognizer, opts AudioOptions, timeouts Timeouts, logger zerolog.Logger) *AudioHandler {
	return &AudioHandler{
		calls:      lifecycle,
		pipeline:   processor,
		recognizer: recognizer,
		opts:       opts,
		timeouts:   timeouts,
		logger:     logger.With().Str("component", "audio").Logger(),
	}
}

// audioLeg is the mutable identity of one connection. Metadata frames and
// recognizer results touch it from different goroutines.
type audioLeg struct {
	path string

	mu      sync.Mutex
	callID  string
	agentID string
	speaker types.Speaker
}

func (l *audioLeg) current() (callID, agentID string, speaker types.Speaker) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.callID, l.agentID, l.speaker
}

// Serve reads frames until the connection closes. Closing a leg never ends the call.
func (h *AudioHandler) Serve(ctx context.Context, conn *websocket.Conn, path string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// unblock the read loop on shutdown
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.timeouts.WriteWait))
		conn.Close()
	})
	defer stop()

	callID, agentID := ExtractCallAgent(path, nil)
	leg := &audioLeg{
		path:    path,
		callID:  callID,
		agentID: agentID,
		speaker: LegSpeaker(path),
	}
	logger := h.logger.With().Str("path", path).Str("leg", string(leg.speaker)).Logger()

	h.calls.Ensure(callID, agentID)
	metrics.Get().RecordConnect(string(RoleAudio))
	logger.Info().Str("call_id", callID).Str("agent_id", agentID).Msg("audio leg connected")

	stream, err := h.recognizer.NewStream(ctx, stt.StreamConfig{
		CallID:     callID,
		Leg:        string(leg.speaker),
		SampleRate: h.opts.SampleRate,
		Language:   h.opts.Language,
	})
	var drained chan struct{}
	if err != nil {
		logger.Error().Err(err).Msg("failed to open recognition stream, audio frames are dropped")
		stream = nil
	} else {
		drained = make(chan struct{})
		go func() {
			defer close(drained)
			h.drain(ctx, leg, stream.Results(), logger)
		}()
	}

	defer func() {
		if stream != nil {
			stream.Close()
			<-drained
		}
		conn.Close()
		metrics.Get().RecordDisconnect(string(RoleAudio))
		logger.Info().Msg("audio leg closed")
	}()

	go h.keepAlive(ctx, conn)

	if h.timeouts.MaxMessageSize > 0 {
		conn.SetReadLimit(h.timeouts.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(h.timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.timeouts.PongWait))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("audio read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.timeouts.PongWait))

		switch msgType {
		case websocket.TextMessage:
			h.handleText(ctx, leg, data, logger)

		case websocket.BinaryMessage:
			id, _, _ := leg.current()
			h.calls.Touch(id)
			if stream == nil {
				continue
			}
			if err := stream.Write(data); err != nil {
				logger.Error().Err(err).Msg("recognition stream failed, audio frames are dropped")
				stream.Close()
				<-drained
				stream = nil
			}
		}
	}
}

func (h *AudioHandler) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.timeouts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.timeouts.WriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *AudioHandler) drain(ctx context.Context, leg *audioLeg, results <-chan stt.Result, logger zerolog.Logger) {
	for res := range results {
		if res.Final {
			h.final(ctx, leg, res.Text, logger)
			continue
		}
		callID, agentID, speaker := leg.current()
		if speaker == types.SpeakerUnknown {
			continue
		}
		h.pipeline.ProcessPartial(callID, agentID, speaker, res.Text)
	}
}

func (h *AudioHandler) handleText(ctx context.Context, leg *audioLeg, data []byte, logger zerolog.Logger) {
	ctrl, isJSON := types.ParseAudioControl(data)
	if !isJSON {
		h.final(ctx, leg, string(data), logger)
		return
	}

	switch ctrl.Kind {
	case types.AudioControlMetadata:
		h.applyMetadata(leg, ctrl.Metadata, logger)

	case types.AudioControlEvent:
		callID, _, speaker := leg.current()
		logger.Info().Str("call_id", callID).Str("event", ctrl.Event).Msg("audio leg event")
		if ctrl.Event != "call_end" {
			return
		}
		if _, err := h.calls.EndCall(ctx, callID, calls.ReasonLegEvent(string(speaker))); err != nil &&
			!errors.Is(err, calls.ErrCallEnded) && !errors.Is(err, calls.ErrCallNotFound) {
			logger.Error().Err(err).Str("call_id", callID).Msg("failed to end call")
		}

	default:
		logger.Debug().Msg("ignoring JSON frame without metadata or event")
	}
}

// applyMetadata re-keys the call and revises its identifiers
func (h *AudioHandler) applyMetadata(leg *audioLeg, meta map[string]string, logger zerolog.Logger) {
	leg.mu.Lock()
	defer leg.mu.Unlock()

	newCallID, newAgentID := ExtractCallAgent(leg.path, meta)

	if newCallID != leg.callID {
		err := h.calls.Rekey(leg.callID, newCallID)
		switch {
		case err == nil:
		case errors.Is(err, calls.ErrCallExists):
			logger.Debug().Str("call_id", newCallID).Msg("joining call re-keyed by the other leg")
		case errors.Is(err, calls.ErrCallEnded):
			logger.Debug().Str("call_id", leg.callID).Msg("metadata for an ended call ignored")
			return
		case errors.Is(err, calls.ErrCallNotFound):
		default:
			logger.Warn().Err(err).Str("old_call_id", leg.callID).Str("call_id", newCallID).Msg("failed to re-key call")
		}
		leg.callID = newCallID
	}

	identity := calls.Identity{
		CustomerID: strings.TrimSpace(meta["customer_id"]),
		Extension:  strings.TrimSpace(meta["extension"]),
		Metadata:   meta,
	}
	if newAgentID != leg.agentID {
		leg.agentID = newAgentID
		identity.AgentID = newAgentID
		if identity.Extension == "" {
			identity.Extension = newAgentID
		}
	}

	if leg.speaker == types.SpeakerUnknown {
		label := meta["leg"]
		if label == "" {
			label = meta["speaker"]
		}
		if s := types.ParseSpeaker(label); s != types.SpeakerUnknown {
			leg.speaker = s
			logger.Info().Str("speaker", string(s)).Msg("leg labelled from metadata")
		}
	}

	h.calls.Ensure(leg.callID, leg.agentID)
	if _, err := h.calls.UpdateIdentity(leg.callID, identity); err != nil {
		logger.Warn().Err(err).Str("call_id", leg.callID).Msg("failed to apply metadata")
		return
	}

	logger.Debug().
		Str("call_id", leg.callID).
		Str("agent_id", leg.agentID).
		Str("customer_id", identity.CustomerID).
		Msg("metadata applied")
}

func (h *AudioHandler) final(ctx context.Context, leg *audioLeg, text string, logger zerolog.Logger) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	for attempt := 0; ; attempt++ {
		callID, agentID, speaker := leg.current()
		if speaker == types.SpeakerUnknown {
			logger.Warn().Str("call_id", callID).Msg("dropping utterance from unlabelled leg")
			return
		}

		_, err := h.pipeline.AppendFinal(ctx, callID, agentID, speaker, text)
		if errors.Is(err, calls.ErrCallNotFound) && attempt == 0 {
			// re-keyed by a metadata frame while this utterance was scored
			if latest, _, _ := leg.current(); latest != callID {
				continue
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, calls.ErrCallEnded), errors.Is(err, calls.ErrCallNotFound), errors.Is(err, pipeline.ErrEmptyText):
			logger.Debug().Err(err).Str("call_id", callID).Msg("utterance dropped")
		default:
			logger.Error().Err(err).Str("call_id", callID).Msg("failed to process utterance")
		}
		return
	}
}
