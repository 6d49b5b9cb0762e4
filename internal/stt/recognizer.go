package stt

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Result is a transcription hypothesis. Final results mark an utterance boundary.
type Result struct {
	Text  string
	Final bool
}

// StreamConfig describes the audio carried by one call leg
type StreamConfig struct {
	CallID     string
	Leg        string
	SampleRate int
	Language   string
}

// Recognizer opens one streaming recognition session per audio leg
type Recognizer interface {
	NewStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Stream accepts raw audio frames and emits partial and final results.
// Write is called from a single goroutine; Results is closed after Close.
type Stream interface {
	Write(frame []byte) error
	Results() <-chan Result
	Close() error
}

// Vendors
const (
	VendorGoogle = "google"
	VendorNone   = "none"
)

// New builds the recognizer for the configured vendor
func New(ctx context.Context, vendor string, cfg GoogleConfig, logger zerolog.Logger) (Recognizer, error) {
	switch vendor {
	case VendorGoogle:
		return NewGoogle(ctx, cfg, logger)
	case VendorNone, "":
		logger.Info().Msg("speech recognition disabled (STT_VENDOR=none), audio frames are discarded")
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown STT vendor %q", vendor)
	}
}

// Discard is a Recognizer that drops all audio. Legs that send text frames
// still produce transcripts.
type Discard struct{}

// NewStream implements Recognizer
func (Discard) NewStream(_ context.Context, _ StreamConfig) (Stream, error) {
	return &discardStream{results: make(chan Result)}, nil
}

type discardStream struct {
	results   chan Result
	closeOnce sync.Once
}

func (s *discardStream) Write(_ []byte) error { return nil }

func (s *discardStream) Results() <-chan Result { return s.results }

func (s *discardStream) Close() error {
	s.closeOnce.Do(func() { close(s.results) })
	return nil
}
