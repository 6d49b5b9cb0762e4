package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout = 10 * time.Second
	dialTimeout  = 10 * time.Second
	// how long to keep the agent UI open after call_end for the final messages
	drainWait = 3 * time.Second
)

func main() {
	// CLI flags
	var (
		serverURL  = flag.String("server", "ws://localhost:8080", "Call monitor websocket base URL")
		agentID    = flag.String("agent", "1001", "Agent extension")
		customerID = flag.String("customer", "", "Customer id sent in the metadata frame")
		scriptPath = flag.String("script", "", "Script file with \"Speaker: text\" lines (default: built-in escalation)")
		interval   = flag.Duration("interval", 1500*time.Millisecond, "Delay between utterances")
		token      = flag.String("token", "", "Bearer token for the agent UI connection")
		watch      = flag.Bool("watch", true, "Open the agent UI connection and log what it receives")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Setup logger
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Str("service", "callsim").
		Logger()

	script := defaultScript
	if *scriptPath != "" {
		f, err := os.Open(*scriptPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open script")
		}
		script, err = parseScript(f)
		f.Close()
		if err != nil {
			logger.Fatal().Err(err).Str("script", *scriptPath).Msg("invalid script")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := &simulator{
		base:       strings.TrimSuffix(*serverURL, "/"),
		callID:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		agentID:    types.NormalizeID(*agentID),
		customerID: *customerID,
		token:      *token,
		interval:   *interval,
		logger:     logger,
	}
	if err := sim.run(ctx, script, *watch); err != nil {
		logger.Fatal().Err(err).Msg("simulation failed")
	}
}

type simulator struct {
	base       string
	callID     string
	agentID    string
	customerID string
	token      string
	interval   time.Duration
	logger     zerolog.Logger
}

func (s *simulator) legPath(leg string) string {
	return fmt.Sprintf("/call_%s/agent_%s/%s", s.callID, s.agentID, leg)
}

func (s *simulator) dial(ctx context.Context, path string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, s.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", path, err)
	}
	return conn, nil
}

func (s *simulator) run(ctx context.Context, script []line, watch bool) error {
	logger := s.logger.With().Str("call_id", s.callID).Str("agent_id", s.agentID).Logger()

	var watched chan struct{}
	if watch {
		q := url.Values{"agentId": {s.agentID}}
		if s.token != "" {
			q.Set("token", s.token)
		}
		ui, err := s.dial(ctx, "/transcripts?"+q.Encode())
		if err != nil {
			return err
		}
		defer ui.Close()

		watched = make(chan struct{})
		go func() {
			defer close(watched)
			s.watch(ui, logger)
		}()
	}

	legs := map[types.Speaker]*websocket.Conn{}
	for speaker, leg := range map[types.Speaker]string{
		types.SpeakerCustomer: "customer",
		types.SpeakerAgent:    "agent",
	} {
		conn, err := s.dial(ctx, s.legPath(leg))
		if err != nil {
			return err
		}
		defer conn.Close()
		legs[speaker] = conn
	}
	logger.Info().Msg("audio legs connected")

	if s.customerID != "" {
		meta := map[string]interface{}{
			"metadata": map[string]string{
				"customer_id": s.customerID,
				"extension":   s.agentID,
			},
		}
		if err := writeJSON(legs[types.SpeakerCustomer], meta); err != nil {
			return err
		}
	}

	for i, l := range script {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}

		conn := legs[l.Speaker]
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(l.Text)); err != nil {
			return fmt.Errorf("failed to send utterance %d: %w", i+1, err)
		}
		logger.Info().Str("speaker", string(l.Speaker)).Str("text", l.Text).Msg("sent")
	}

	if err := writeJSON(legs[types.SpeakerCustomer], map[string]string{"event": "call_end"}); err != nil {
		return err
	}
	logger.Info().Int("utterances", len(script)).Msg("call_end sent")

	if watched != nil {
		select {
		case <-watched:
		case <-time.After(drainWait):
		case <-ctx.Done():
		}
	}
	return nil
}

// watch logs agent UI messages until call_ended arrives or the socket closes
func (s *simulator) watch(conn *websocket.Conn, logger zerolog.Logger) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.Debug().Err(err).Msg("agent UI connection closed")
			return
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn().Str("raw", string(data)).Msg("non-JSON message from server")
			continue
		}

		event := logger.Info()
		if msg["type"] == types.MsgTypeSupervisorAlert {
			event = logger.Warn()
		}
		event = event.Interface("type", msg["type"])
		switch msg["type"] {
		case types.MsgTypeTranscript:
			event = event.
				Interface("speaker", msg["speaker"]).
				Interface("kind", msg["message_type"]).
				Interface("sentiment", msg["sentiment"]).
				Interface("keyphrases", msg["keyphrases"])
		case types.MsgTypeSupervisorAlert:
			event = event.
				Interface("reason", msg["reason"]).
				Interface("streak", msg["streak"])
		case types.MsgTypeCallEnded:
			event = event.Interface("reason", msg["reason"])
		}
		event.Msg("received")

		if msg["type"] == types.MsgTypeCallEnded && msg["call_id"] == s.callID {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to send control frame: %w", err)
	}
	return nil
}
