package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_ResolveNormalizes(t *testing.T) {
	d := New()
	d.Replace([]types.SupervisorMapping{
		{Extension: " 1001 ", SupervisorID: "Sup.Anna"},
		{Extension: "1002", SupervisorID: "sup.anna"},
		{Extension: "AGENT-7", SupervisorID: "sup.ben"},
		{Extension: "", SupervisorID: "sup.ben"},
		{Extension: "1003", SupervisorID: " "},
	})

	sup, ok := d.Resolve("1001")
	require.True(t, ok)
	assert.Equal(t, "sup.anna", sup)

	sup, ok = d.Resolve("agent-7")
	require.True(t, ok)
	assert.Equal(t, "sup.ben", sup)

	_, ok = d.Resolve("1003")
	assert.False(t, ok)

	assert.Equal(t, []string{"1001", "1002"}, d.ExtensionsFor("SUP.ANNA"))
	assert.Equal(t, 3, d.Len())
}

func TestDirectory_LastRowWins(t *testing.T) {
	d := New()
	d.Replace([]types.SupervisorMapping{
		{Extension: "1001", SupervisorID: "sup1"},
		{Extension: "1001", SupervisorID: "sup2"},
	})

	sup, _ := d.Resolve("1001")
	assert.Equal(t, "sup2", sup)
	assert.Empty(t, d.ExtensionsFor("sup1"))
	assert.Equal(t, []string{"1001"}, d.ExtensionsFor("sup2"))
}

func TestDirectory_ExtensionsForReturnsCopy(t *testing.T) {
	d := New()
	d.Replace([]types.SupervisorMapping{{Extension: "1001", SupervisorID: "sup1"}})

	exts := d.ExtensionsFor("sup1")
	exts[0] = "mutated"
	assert.Equal(t, []string{"1001"}, d.ExtensionsFor("sup1"))
}

type fakeSource struct {
	mu       sync.Mutex
	mappings []types.SupervisorMapping
	err      error
	calls    int
}

func (s *fakeSource) LoadSupervisorMappings(_ context.Context) ([]types.SupervisorMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.mappings, s.err
}

func TestRefresher_FailedLoadKeepsSnapshot(t *testing.T) {
	d := New()
	src := &fakeSource{mappings: []types.SupervisorMapping{{Extension: "1001", SupervisorID: "sup1"}}}
	r := NewRefresher(d, src, time.Minute, zerolog.Nop())

	require.NoError(t, r.Reload(context.Background()))
	assert.Equal(t, 1, d.Len())

	src.err = errors.New("db unavailable")
	assert.Error(t, r.Reload(context.Background()))

	sup, ok := d.Resolve("1001")
	assert.True(t, ok)
	assert.Equal(t, "sup1", sup)
}

func TestRefresher_StartLoadsImmediately(t *testing.T) {
	d := New()
	src := &fakeSource{mappings: []types.SupervisorMapping{{Extension: "1001", SupervisorID: "sup1"}}}
	r := NewRefresher(d, src, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return d.Len() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}
