package bus

import (
	"context"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// NoopBus drops every event. It is used when AMQP_URL is empty.
type NoopBus struct{}

func NewNoopBus() *NoopBus { return &NoopBus{} }

func (NoopBus) PublishTranscript(_ context.Context, _ types.TranscriptEvent) error { return nil }
func (NoopBus) PublishCallEnd(_ context.Context, _ types.CallEndEvent) error       { return nil }
func (NoopBus) Close() error                                                       { return nil }

// Run blocks until ctx is done; no summaries ever arrive.
func (NoopBus) Run(ctx context.Context, _ SummaryHandler) error {
	<-ctx.Done()
	return nil
}
