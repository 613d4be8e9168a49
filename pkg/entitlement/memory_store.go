package entitlement

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store that serialises writers per user key.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	locks   map[string]*sync.Mutex
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) keyLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// Update applies m to a copy of the user's record under the store mutex and
// commits the copy only when m succeeds and reports a change.
func (s *MemoryStore) Update(ctx context.Context, userID string, m Mutation) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	l := s.keyLock(userID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	current, ok := s.records[userID]
	s.mu.RUnlock()

	var working *Record
	if ok {
		working = current.Clone()
	} else {
		working = NewRecord(userID)
	}

	changed, err := m(working)
	if err != nil {
		return nil, err
	}
	if !changed {
		return working, nil
	}

	working.Version++
	working.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.records[userID] = working.Clone()
	s.mu.Unlock()

	return working, nil
}

func (s *MemoryStore) FindBySubscription(ctx context.Context, subscriptionRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for userID, rec := range s.records {
		if _, ok := rec.FindActiveBySubscription(subscriptionRef); ok {
			return userID, nil
		}
	}
	return "", ErrRecordNotFound
}

func (s *MemoryStore) ListPendingRefunds(ctx context.Context) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, rec := range s.records {
		if len(rec.PendingRefunds()) > 0 {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Healthcheck always succeeds; it exists so every backend exposes the same health check.
func (s *MemoryStore) Healthcheck(ctx context.Context) error {
	if s == nil {
		return errors.New("entitlement: nil memory store")
	}
	return ctx.Err()
}
