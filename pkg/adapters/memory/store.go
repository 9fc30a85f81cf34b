package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/deckhand/pkg/domain"
)

// Store implements ports.StageStore in memory.
// Values are kept in their textual form so the decoding path matches the
// persistent backends. Safe for concurrent use.
type Store struct {
	data map[string]string
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]string),
	}
}

// Save persists the watermark in memory.
func (s *Store) Save(ctx context.Context, requestID string, stage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[requestID] = domain.FormatStage(stage)
	return nil
}

// SetRaw stores an arbitrary textual value for requestID.
func (s *Store) SetRaw(requestID, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[requestID] = raw
}

// Load retrieves the watermark from memory.
func (s *Store) Load(ctx context.Context, requestID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.data[requestID]
	if !ok {
		return 0, domain.ErrStageNotFound
	}
	return domain.ParseStage(raw)
}

// Delete removes the watermark.
func (s *Store) Delete(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, requestID)
	return nil
}

// List returns the request ids in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
