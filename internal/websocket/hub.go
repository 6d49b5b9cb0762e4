package websocket

import (
	"context"
	"sync"

	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/rs/zerolog"
)

// Role identifies which UI a registered client belongs to
type Role string

const (
	RoleAgent      Role = "agent"
	RoleSupervisor Role = "supervisor"
	RoleAudio      Role = "audio"
)

// Hub maintains the live agent and supervisor UI connections
type Hub struct {
	// Registered clients, keyed by normalized id
	agents      map[string]*Client
	supervisors map[string]*Client

	// Register requests from handlers
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex to protect the client maps
	mu sync.RWMutex

	logger zerolog.Logger
}

// NewHub creates a new Hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		agents:      make(map[string]*Client),
		supervisors: make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		logger:      logger.With().Str("component", "hub").Logger(),
	}
}

// Run starts the hub's main loop. On return every client is closed.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	h.logger.Info().Msg("hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info().Msg("hub stopped")
			return nil

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// Register adds a client, replacing any connection with the same id
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister removes a client if it is still the registered one
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// SendToAgent sends a message to an agent UI. A failed send drops the agent.
func (h *Hub) SendToAgent(agentID string, message []byte) bool {
	h.mu.RLock()
	client, ok := h.agents[agentID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	if client.safeSend(message) {
		return true
	}

	h.logger.Warn().Str("agent_id", agentID).Msg("agent send failed, dropping connection")
	h.remove(client)
	return false
}

// SendToSupervisor sends a message to a supervisor UI
func (h *Hub) SendToSupervisor(supervisorID string, message []byte) bool {
	h.mu.RLock()
	client, ok := h.supervisors[supervisorID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	return client.safeSend(message)
}

// AgentCount returns the number of connected agent UIs
func (h *Hub) AgentCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agents)
}

// SupervisorCount returns the number of connected supervisor UIs
func (h *Hub) SupervisorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.supervisors)
}

func (h *Hub) clients(role Role) map[string]*Client {
	if role == RoleSupervisor {
		return h.supervisors
	}
	return h.agents
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	set := h.clients(client.role)
	if existing, ok := set[client.id]; ok && existing != client {
		existing.Close()
		metrics.Get().RecordDisconnect(string(client.role))
		h.logger.Info().
			Str("role", string(client.role)).
			Str("id", client.id).
			Msg("replacing existing connection")
	}
	set[client.id] = client
	total := len(set)
	h.mu.Unlock()

	metrics.Get().RecordConnect(string(client.role))
	h.logger.Info().
		Str("role", string(client.role)).
		Str("id", client.id).
		Int("total", total).
		Msg("client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	set := h.clients(client.role)
	existing, ok := set[client.id]
	if ok && existing == client {
		delete(set, client.id)
	}
	total := len(set)
	h.mu.Unlock()

	client.Close()
	if ok && existing == client {
		metrics.Get().RecordDisconnect(string(client.role))
		h.logger.Info().
			Str("role", string(client.role)).
			Str("id", client.id).
			Int("total", total).
			Msg("client disconnected")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.agents {
		c.Close()
		delete(h.agents, id)
	}
	for id, c := range h.supervisors {
		c.Close()
		delete(h.supervisors, id)
	}
}
