package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errStreamClosed = errors.New("recognition stream closed")

// flushTimeout bounds how long Close waits for results after CloseSend
const flushTimeout = 5 * time.Second

// GoogleConfig configures the Google Speech-to-Text client
type GoogleConfig struct {
	CredentialsFile string
	Language        string
	SampleRate      int
}

// Google streams LINEAR16 audio to Google Speech-to-Text with interim results
type Google struct {
	client *speech.Client
	config GoogleConfig
	logger zerolog.Logger
}

// NewGoogle creates a Google recognizer
func NewGoogle(ctx context.Context, cfg GoogleConfig, logger zerolog.Logger) (*Google, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Speech client: %w", err)
	}

	logger = logger.With().Str("component", "stt_google").Logger()
	logger.Info().
		Str("language", cfg.Language).
		Int("sample_rate", cfg.SampleRate).
		Msg("Google Speech-to-Text client initialized")

	return &Google{client: client, config: cfg, logger: logger}, nil
}

// Close releases the underlying gRPC connection
func (g *Google) Close() error {
	return g.client.Close()
}

// NewStream implements Recognizer
func (g *Google) NewStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = g.config.SampleRate
	}
	language := cfg.Language
	if language == "" {
		language = g.config.Language
	}

	streamingConfig := &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(sampleRate),
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
		},
		InterimResults: true,
	}

	open := func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
		stream, err := g.client.StreamingRecognize(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open streaming recognize: %w", err)
		}
		if err := stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{StreamingConfig: streamingConfig},
		}); err != nil {
			stream.CloseSend()
			return nil, fmt.Errorf("failed to send streaming config: %w", err)
		}
		return stream, nil
	}

	logger := g.logger.With().Str("call_id", cfg.CallID).Str("leg", cfg.Leg).Logger()
	return newGoogleStream(ctx, open, logger)
}

// sessionOpener opens a recognition session and sends its streaming config
type sessionOpener func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error)

// googleStream spans as many recognition sessions as the leg needs. Google
// ends a session after about five minutes of audio; the next session is
// opened transparently and results keep flowing on the same channel.
type googleStream struct {
	open    sessionOpener
	ctx     context.Context
	cancel  context.CancelFunc
	results chan Result
	done    chan struct{}
	logger  zerolog.Logger

	mu      sync.Mutex
	session speechpb.Speech_StreamingRecognizeClient
	gen     int
	closing bool

	closeOnce sync.Once
}

func newGoogleStream(ctx context.Context, open sessionOpener, logger zerolog.Logger) (*googleStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	session, err := open(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &googleStream{
		open:    open,
		ctx:     ctx,
		cancel:  cancel,
		results: make(chan Result, 16),
		done:    make(chan struct{}),
		logger:  logger,
		session: session,
	}
	go s.receive()
	return s, nil
}

func (s *googleStream) current() (speechpb.Speech_StreamingRecognizeClient, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.gen
}

// restart replaces session gen with a fresh one. A caller holding a stale
// generation finds the work already done.
func (s *googleStream) restart(gen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return errStreamClosed
	}
	if gen != s.gen {
		return nil
	}

	session, err := s.open(s.ctx)
	if err != nil {
		s.closing = true
		return err
	}
	old := s.session
	s.session = session
	s.gen++
	old.CloseSend()

	s.logger.Debug().Int("session", s.gen).Msg("recognition session restarted")
	return nil
}

func sendAudio(session speechpb.Speech_StreamingRecognizeClient, frame []byte) error {
	return session.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: frame,
		},
	})
}

func (s *googleStream) Write(frame []byte) error {
	session, gen := s.current()
	err := sendAudio(session, frame)
	if !errors.Is(err, io.EOF) {
		return err
	}

	// the server ended the session; the frame goes to the next one
	if err := s.restart(gen); err != nil {
		return fmt.Errorf("failed to restart streaming recognize: %w", err)
	}
	session, _ = s.current()
	return sendAudio(session, frame)
}

func (s *googleStream) Results() <-chan Result { return s.results }

// Close half-closes the stream, waits for the server to flush its last
// results and then cancels the session.
func (s *googleStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		session := s.session
		s.mu.Unlock()

		err = session.CloseSend()
		select {
		case <-s.done:
		case <-time.After(flushTimeout):
			s.logger.Warn().Msg("timed out waiting for final results")
		}
		s.cancel()
	})
	return err
}

func (s *googleStream) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *googleStream) receive() {
	defer func() {
		close(s.results)
		close(s.done)
	}()

	for {
		session, gen := s.current()
		err := s.receiveSession(session)
		if err == nil || s.ctx.Err() != nil || s.isClosing() {
			return
		}
		if _, latest := s.current(); latest != gen {
			continue
		}
		if !sessionExpired(err) {
			s.logger.Warn().Err(err).Msg("streaming recognize receive failed")
			return
		}
		if err := s.restart(gen); err != nil {
			if !errors.Is(err, errStreamClosed) {
				s.logger.Warn().Err(err).Msg("failed to restart streaming recognize")
			}
			return
		}
	}
}

// receiveSession forwards results until the session ends. It returns the
// terminating error, or nil when the stream context is done.
func (s *googleStream) receiveSession(session speechpb.Speech_StreamingRecognizeClient) error {
	for {
		resp, err := session.Recv()
		if err != nil {
			return err
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			text := strings.TrimSpace(result.Alternatives[0].Transcript)
			if text == "" {
				continue
			}
			select {
			case s.results <- Result{Text: text, Final: result.IsFinal}:
			case <-s.ctx.Done():
				return nil
			}
		}
	}
}

// sessionExpired reports whether the server ended the session on its own,
// either at the stream duration limit or with a clean EOF.
func sessionExpired(err error) bool {
	return errors.Is(err, io.EOF) || status.Code(err) == codes.OutOfRange
}
