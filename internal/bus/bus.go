package bus

import (
	"context"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

// Event kinds, used as metric labels
const (
	KindTranscript = "transcript"
	KindCallEnd    = "call_end"
)

// Publisher emits transcript and call-end events. Callers treat publishing as
// fire-and-forget: errors are logged and never retried.
type Publisher interface {
	PublishTranscript(ctx context.Context, event types.TranscriptEvent) error
	PublishCallEnd(ctx context.Context, event types.CallEndEvent) error
}

// SummaryHandler receives every call summary consumed from the bus
type SummaryHandler func(ctx context.Context, event types.SummaryEvent)

// SummaryConsumer reads externally produced call summaries until ctx is done
type SummaryConsumer interface {
	Run(ctx context.Context, handler SummaryHandler) error
}

// Bus is a publisher and summary consumer sharing one broker connection
type Bus interface {
	Publisher
	SummaryConsumer
	Close() error
}
