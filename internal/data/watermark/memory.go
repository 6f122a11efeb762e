package watermark

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the watermark in process. Used by dry runs.
type MemoryStore struct {
	mu  sync.Mutex
	t   time.Time
	set bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(_ context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t, s.set, nil
}

func (s *MemoryStore) Save(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t, s.set = t.UTC(), true
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t, s.set = time.Time{}, false
	return nil
}
