package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const (
	prefetchCount   = 10
	maxBackoff      = 30 * time.Second
	dialTimeout     = 5 * time.Second
	heartbeat       = 10 * time.Second
	consumerTag     = "monti-callmonitor"
	contentTypeJSON = "application/json"
)

var errNotConnected = errors.New("not connected to AMQP server")

// AMQPConfig holds the broker URL and queue names
type AMQPConfig struct {
	URL             string
	TranscriptQueue string
	SummaryQueue    string
}

type dialFunc func(url string) (*amqp.Connection, error)

// AMQPBus publishes to durable queues through the default exchange (routing
// key = queue name) and consumes the summary queue. While the connection is
// down publishes fail fast and a background loop re-dials with backoff.
type AMQPBus struct {
	config AMQPConfig
	logger zerolog.Logger
	dial   dialFunc

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	wake chan struct{}
	stop chan struct{}
}

// NewAMQPBus dials the broker and declares both queues
func NewAMQPBus(cfg AMQPConfig, logger zerolog.Logger) (*AMQPBus, error) {
	b := newAMQPBus(cfg, logger, func(url string) (*amqp.Connection, error) {
		return amqp.DialConfig(url, amqp.Config{
			Heartbeat: heartbeat,
			Locale:    "en_US",
			Dial:      amqp.DefaultDial(dialTimeout),
		})
	})

	conn, channel, err := b.connect()
	if err != nil {
		return nil, err
	}
	b.conn = conn
	b.channel = channel

	go b.reconnectLoop()
	return b, nil
}

func newAMQPBus(cfg AMQPConfig, logger zerolog.Logger, dial dialFunc) *AMQPBus {
	return &AMQPBus{
		config: cfg,
		logger: logger.With().Str("component", "amqp_bus").Logger(),
		dial:   dial,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// connect opens a connection and channel and declares both queues
func (b *AMQPBus) connect() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := b.dial(b.config.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	for _, queue := range []string{b.config.TranscriptQueue, b.config.SummaryQueue} {
		if _, err := channel.QueueDeclare(
			queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		); err != nil {
			channel.Close()
			conn.Close()
			return nil, nil, fmt.Errorf("failed to declare AMQP queue %s: %w", queue, err)
		}
	}

	b.logger.Info().
		Str("transcript_queue", b.config.TranscriptQueue).
		Str("summary_queue", b.config.SummaryQueue).
		Msg("connected to AMQP server")
	return conn, channel, nil
}

// liveLocked reports whether the current connection is usable. Caller holds b.mu.
func (b *AMQPBus) liveLocked() bool {
	return b.conn != nil && !b.conn.IsClosed() && b.channel != nil
}

func (b *AMQPBus) requestReconnect() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// channelForPublish returns the live channel or errNotConnected. It never dials.
func (b *AMQPBus) channelForPublish() (*amqp.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errNotConnected
	}
	if b.liveLocked() {
		return b.channel, nil
	}
	b.requestReconnect()
	return nil, errNotConnected
}

// reconnectLoop re-dials after a publish or the consumer finds the
// connection down, retrying with backoff until it succeeds or the bus closes.
func (b *AMQPBus) reconnectLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.wake:
		}

		for attempt := 1; ; attempt++ {
			b.mu.Lock()
			live := b.closed || b.liveLocked()
			b.mu.Unlock()
			if live {
				break
			}

			if attempt == 1 {
				b.logger.Warn().Msg("AMQP connection closed, reconnecting")
			}
			conn, channel, err := b.connect()
			if err == nil {
				b.mu.Lock()
				if b.closed {
					b.mu.Unlock()
					channel.Close()
					conn.Close()
					return
				}
				b.conn = conn
				b.channel = channel
				b.mu.Unlock()
				break
			}

			backoff := reconnectBackoff(attempt)
			b.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("AMQP reconnect failed")
			select {
			case <-b.stop:
				return
			case <-time.After(backoff):
			}
		}
	}
}

func reconnectBackoff(attempt int) time.Duration {
	backoff := time.Duration(1<<uint(min(attempt-1, 5))) * time.Second
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func (b *AMQPBus) publish(ctx context.Context, kind string, event interface{}) error {
	err := b.doPublish(ctx, event)
	metrics.Get().RecordBusPublish(kind, err)
	return err
}

func (b *AMQPBus) doPublish(ctx context.Context, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel, err := b.channelForPublish()
	if err != nil {
		return err
	}

	err = channel.Publish(
		"",                       // default exchange
		b.config.TranscriptQueue, // routing key = queue name
		false,                    // mandatory
		false,                    // immediate
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to AMQP: %w", err)
	}
	return nil
}

// PublishTranscript implements Publisher
func (b *AMQPBus) PublishTranscript(ctx context.Context, event types.TranscriptEvent) error {
	return b.publish(ctx, KindTranscript, event)
}

// PublishCallEnd implements Publisher
func (b *AMQPBus) PublishCallEnd(ctx context.Context, event types.CallEndEvent) error {
	return b.publish(ctx, KindCallEnd, event)
}

// Run consumes the summary queue on a dedicated channel. When the delivery
// channel closes it reconnects with exponential backoff until ctx is done.
func (b *AMQPBus) Run(ctx context.Context, handler SummaryHandler) error {
	b.logger.Info().Str("queue", b.config.SummaryQueue).Msg("summary consumer started")
	defer b.logger.Info().Msg("summary consumer stopped")

	attempt := 0
	for {
		err := b.consume(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		backoff := reconnectBackoff(attempt)
		b.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("summary consumer disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
	}
}

func (b *AMQPBus) consume(ctx context.Context, handler SummaryHandler) error {
	b.mu.Lock()
	conn := b.conn
	live := !b.closed && b.liveLocked()
	b.mu.Unlock()
	if !live {
		b.requestReconnect()
		return errNotConnected
	}

	channel, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer channel.Close()

	if err := channel.Qos(prefetchCount, 0, false); err != nil {
		b.logger.Warn().Err(err).Msg("failed to set QoS on AMQP channel, continuing anyway")
	}

	deliveries, err := channel.Consume(
		b.config.SummaryQueue,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", b.config.SummaryQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			var event types.SummaryEvent
			if err := json.Unmarshal(d.Body, &event); err != nil {
				b.logger.Debug().Err(err).Msg("discarding malformed summary")
				d.Nack(false, false)
				continue
			}
			metrics.Get().RecordSummaryReceived()
			handler(ctx, event)
			if err := d.Ack(false); err != nil {
				b.logger.Warn().Err(err).Str("call_id", event.CallID).Msg("failed to ack summary")
			}
		}
	}
}

// Close closes the channel and connection
func (b *AMQPBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.stop)
	if b.channel != nil {
		b.channel.Close()
		b.channel = nil
	}
	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}
	b.logger.Info().Msg("disconnected from AMQP server")
	return nil
}

// New returns an AMQPBus when url is set, otherwise a NoopBus. An unreachable
// broker logs a warning and also falls back to NoopBus.
func New(cfg AMQPConfig, logger zerolog.Logger) Bus {
	if cfg.URL == "" {
		logger.Info().Msg("message bus disabled (AMQP_URL empty)")
		return NewNoopBus()
	}
	b, err := NewAMQPBus(cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("AMQP unavailable, message bus disabled")
		return NewNoopBus()
	}
	return b
}
