package outbox

import (
	"context"
	"fmt"
	"sync"

	"relaychat/internal/model"
)

// Store holds messages accepted by the server but not yet acknowledged
// by their recipient. Entries are added on accept regardless of whether
// the recipient was reachable, and removed only when the recipient's
// acknowledgment arrives, so online and offline deliveries share one
// removal path.
type Store interface {
	// Add inserts a message keyed by its server message id. Inserting
	// an id that is already present is a logic error: ids are assigned
	// exactly once by the coordinator.
	Add(ctx context.Context, m *model.Message) error

	// Remove deletes and returns the entry for serverMsgID. An unknown
	// id reports absence with a nil message and no error; duplicate or
	// late acknowledgments must not be fatal.
	Remove(ctx context.Context, serverMsgID string) (*model.Message, error)

	// DrainFor returns, in insertion order, every stored message
	// addressed to identity. It does not remove them; removal happens
	// only on acknowledgment, so messages resent through this path are
	// held until truly acknowledged.
	DrainFor(ctx context.Context, identity string) ([]model.Message, error)
}

type (
	// Memory is the in-process Store. A mutex serializes access from
	// the per-connection goroutines.
	Memory struct {
		mu      sync.Mutex
		entries map[string]*model.Message
		order   []string
	}
)

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*model.Message),
	}
}

func (s *Memory) Add(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[m.ServerMsgID]; ok {
		return fmt.Errorf("outbox: duplicate server message id %q", m.ServerMsgID)
	}
	s.entries[m.ServerMsgID] = m
	s.order = append(s.order, m.ServerMsgID)
	return nil
}

func (s *Memory) Remove(_ context.Context, serverMsgID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.entries[serverMsgID]
	if !ok {
		return nil, nil
	}
	delete(s.entries, serverMsgID)
	for i, id := range s.order {
		if id == serverMsgID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return m, nil
}

func (s *Memory) DrainFor(_ context.Context, identity string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Message
	for _, id := range s.order {
		m, ok := s.entries[id]
		if !ok {
			continue
		}
		if m.To == identity {
			out = append(out, *m)
		}
	}
	return out, nil
}
