package calls

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/types"
)

var (
	ErrCallNotFound = errors.New("call not found")
	ErrCallExists   = errors.New("call already exists")
	ErrCallEnded    = errors.New("call already ended")
)

// Identity carries revised identifiers for a call. Empty fields are left unchanged.
type Identity struct {
	AgentID    string
	CustomerID string
	Extension  string
	Metadata   map[string]string
}

// Store owns every in-memory call. All accessors return deep copies.
type Store struct {
	mu    sync.RWMutex
	calls map[string]*types.Call
	now   func() time.Time
}

// NewStore creates an empty call store
func NewStore() *Store {
	return &Store{
		calls: make(map[string]*types.Call),
		now:   time.Now,
	}
}

// Ensure returns the call, creating it as active when the id is unseen
func (s *Store) Ensure(callID, agentID string) (types.Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.calls[callID]; ok {
		return c.Clone(), false
	}
	c := types.NewCall(callID, types.NormalizeID(agentID), s.now())
	s.calls[callID] = c
	return c.Clone(), true
}

// Rekey moves an active call to a new id. The new id must be unused.
// An ended call keeps its id until it is purged.
func (s *Store) Rekey(oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[oldID]
	if !ok {
		return ErrCallNotFound
	}
	if !c.IsActive() {
		return ErrCallEnded
	}
	if _, exists := s.calls[newID]; exists {
		return ErrCallExists
	}
	c.CallID = newID
	s.calls[newID] = c
	delete(s.calls, oldID)
	return nil
}

// IsActive reports whether the call exists and has not ended
func (s *Store) IsActive(callID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.calls[callID]
	return ok && c.IsActive()
}

// UpdateIdentity revises identifiers and merges metadata
func (s *Store) UpdateIdentity(callID string, id Identity) (types.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		return types.Call{}, ErrCallNotFound
	}
	if id.AgentID != "" {
		c.AgentID = types.NormalizeID(id.AgentID)
	}
	if id.CustomerID != "" {
		c.CustomerID = id.CustomerID
	}
	if id.Extension != "" {
		c.Extension = types.NormalizeID(id.Extension)
	}
	for k, v := range id.Metadata {
		c.Metadata[k] = v
	}
	c.LastActivity = s.now()
	return c.Clone(), nil
}

// Append adds a finalized entry and returns the updated call
func (s *Store) Append(callID string, entry types.TranscriptEntry) (types.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok {
		return types.Call{}, ErrCallNotFound
	}
	if !c.IsActive() {
		return types.Call{}, ErrCallEnded
	}
	c.Transcripts[entry.Speaker] = append(c.Transcripts[entry.Speaker], entry)
	c.LastActivity = s.now()
	return c.Clone(), nil
}

// Touch marks activity on an active call
func (s *Store) Touch(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.calls[callID]; ok && c.IsActive() {
		c.LastActivity = s.now()
	}
}

// MarkEnded ends an active call. Only the first caller gets true.
func (s *Store) MarkEnded(callID, reason string, at time.Time) (types.Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok || !c.IsActive() {
		return types.Call{}, false
	}
	c.Status = types.CallStatusEnded
	c.EndReason = reason
	end := at
	c.EndTime = &end
	return c.Clone(), true
}

// Purge removes an ended call
func (s *Store) Purge(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.calls[callID]
	if !ok || c.IsActive() {
		return false
	}
	delete(s.calls, callID)
	return true
}

// Get returns a copy of the call
func (s *Store) Get(callID string) (types.Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.calls[callID]
	if !ok {
		return types.Call{}, false
	}
	return c.Clone(), true
}

// List returns every call, oldest first
func (s *Store) List() []types.Call {
	return s.collect(func(*types.Call) bool { return true })
}

// ActiveForAgent returns the active calls handled by an agent
func (s *Store) ActiveForAgent(agentID string) []types.Call {
	id := types.NormalizeID(agentID)
	return s.collect(func(c *types.Call) bool {
		return c.IsActive() && (c.AgentID == id || c.Extension == id)
	})
}

// ForExtensions returns the active calls on any of the given extensions
func (s *Store) ForExtensions(extensions []string) []types.Call {
	set := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		set[types.NormalizeID(e)] = true
	}
	return s.collect(func(c *types.Call) bool {
		return c.IsActive() && (set[c.Extension] || set[c.AgentID])
	})
}

// Stale returns the ids of active calls idle for longer than threshold
func (s *Store) Stale(threshold time.Duration, now time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, c := range s.calls {
		if c.IsActive() && now.Sub(c.LastActivity) > threshold {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ActiveIDs returns the ids of all active calls
func (s *Store) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, c := range s.calls {
		if c.IsActive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) collect(keep func(*types.Call) bool) []types.Call {
	s.mu.RLock()
	out := make([]types.Call, 0, len(s.calls))
	for _, c := range s.calls {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}
