package session

import (
	"context"
	"sync"
	"time"
)

// Store persists records by id. Implementations must be safe for concurrent
// use; concurrent saves of the same id are last-writer-wins.
type Store interface {
	// Get returns false when the id is unknown or already expired.
	Get(ctx context.Context, id string) (Record, bool, error)
	Save(ctx context.Context, rec Record) error
	// Refresh moves the expiry of a live record and returns it as stored.
	// It never recreates a record that was deleted or has expired, so a
	// logout racing a refresh of the same id stays logged out.
	Refresh(ctx context.Context, id string, expiresAt time.Time) (Record, bool, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a process-local Store. Records are copied in and out so
// callers never share state with the map.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]Record
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Record, bool, error) {
	s.mu.RLock()
	rec, ok := s.recs[id]
	s.mu.RUnlock()
	if !ok || rec.Expired(s.now()) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.recs[rec.ID] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Refresh(_ context.Context, id string, expiresAt time.Time) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok || rec.Expired(s.now()) {
		return Record{}, false, nil
	}
	rec.ExpiresAt = expiresAt
	s.recs[id] = rec
	return rec, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.recs, id)
	s.mu.Unlock()
	return nil
}

// Len counts stored records, expired ones included until the next sweep.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

// Sweep drops records expired at now and returns how many went.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.recs {
		if rec.Expired(now) {
			delete(s.recs, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}
