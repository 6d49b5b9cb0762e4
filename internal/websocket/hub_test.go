package websocket

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zerolog.New(&bytes.Buffer{}))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func testClient(role Role, id string, buffer int) *Client {
	return &Client{
		id:   id,
		role: role,
		send: make(chan []byte, buffer),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(zerolog.New(&bytes.Buffer{}))

	require.NotNil(t, hub)
	assert.NotNil(t, hub.agents, "agents map initialized")
	assert.NotNil(t, hub.supervisors, "supervisors map initialized")
	assert.NotNil(t, hub.register, "register channel initialized")
	assert.NotNil(t, hub.unregister, "unregister channel initialized")
}

func TestHubCounts(t *testing.T) {
	hub := NewHub(zerolog.New(&bytes.Buffer{}))
	assert.Equal(t, 0, hub.AgentCount())

	hub.mu.Lock()
	hub.agents["1001"] = testClient(RoleAgent, "1001", 1)
	hub.agents["1002"] = testClient(RoleAgent, "1002", 1)
	hub.supervisors["sup1"] = testClient(RoleSupervisor, "sup1", 1)
	hub.mu.Unlock()

	assert.Equal(t, 2, hub.AgentCount())
	assert.Equal(t, 1, hub.SupervisorCount())
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := startHub(t)

	client := testClient(RoleAgent, "1001", 1)
	hub.Register(client)
	assert.Eventually(t, func() bool { return hub.AgentCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Unregister(client)
	assert.Eventually(t, func() bool { return hub.AgentCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubRegisterReplacesExisting(t *testing.T) {
	hub := startHub(t)

	first := testClient(RoleAgent, "1001", 1)
	second := testClient(RoleAgent, "1001", 1)

	hub.Register(first)
	hub.Register(second)
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, hub.AgentCount())

	// the replaced connection's send channel is closed
	_, ok := <-first.send
	assert.False(t, ok)

	// a late unregister of the replaced client must not remove the new one
	hub.Unregister(first)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, hub.AgentCount())

	require.True(t, hub.SendToAgent("1001", []byte("hello")))
	assert.Equal(t, "hello", string(<-second.send))
}

func TestHubSendToAgentDropsOnFailure(t *testing.T) {
	hub := startHub(t)

	client := testClient(RoleAgent, "1001", 1)
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	require.True(t, hub.SendToAgent("1001", []byte("first")))

	// buffer is full now
	assert.False(t, hub.SendToAgent("1001", []byte("second")))
	assert.Equal(t, 0, hub.AgentCount(), "slow agent is dropped")
}

func TestHubSendToUnknown(t *testing.T) {
	hub := startHub(t)

	assert.False(t, hub.SendToAgent("nobody", []byte("x")))
	assert.False(t, hub.SendToSupervisor("nobody", []byte("x")))
}

func TestHubRolesAreSeparate(t *testing.T) {
	hub := startHub(t)

	agent := testClient(RoleAgent, "x1", 2)
	supervisor := testClient(RoleSupervisor, "x1", 2)
	hub.Register(agent)
	hub.Register(supervisor)
	time.Sleep(10 * time.Millisecond)

	require.True(t, hub.SendToSupervisor("x1", []byte("alert")))

	select {
	case msg := <-supervisor.send:
		assert.Equal(t, "alert", string(msg))
	case <-time.After(100 * time.Millisecond):
		t.Fatal("supervisor did not receive message")
	}
	assert.Empty(t, agent.send, "agent with the same id receives nothing")
}
