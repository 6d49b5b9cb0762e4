package websocket

import (
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/config"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const sendBufferSize = 256

// Timeouts are the heartbeat settings applied to every connection
type Timeouts struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// TimeoutsFrom derives connection timeouts from the service config
func TimeoutsFrom(cfg *config.Config) Timeouts {
	return Timeouts{
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		PingPeriod:     cfg.PingPeriod,
		MaxMessageSize: cfg.MaxMessageSize,
	}
}

// Client is a middleman between a UI websocket connection and the hub
type Client struct {
	// Normalized agent or supervisor id
	id string

	role Role

	// The hub this client belongs to
	hub *Hub

	// The websocket connection
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	// Called for every inbound text message
	onMessage func(message []byte)

	timeouts Timeouts
	logger   zerolog.Logger

	// done is closed when the read pump exits
	done chan struct{}

	// closeOnce ensures send channel is closed only once
	closeOnce sync.Once
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, role Role, id string, timeouts Timeouts, logger zerolog.Logger) *Client {
	return &Client{
		id:       id,
		role:     role,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		timeouts: timeouts,
		logger:   logger.With().Str("role", string(role)).Str("id", id).Logger(),
		done:     make(chan struct{}),
	}
}

// readPump pumps messages from the websocket connection to onMessage.
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if c.timeouts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.timeouts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Msg("websocket read error")
			}
			break
		}
		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.timeouts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start starts the client's read and write pumps
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Close safely closes the client's send channel (idempotent)
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// safeSend attempts a non-blocking send, recovering from panic if the channel is closed
func (c *Client) safeSend(data []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}
