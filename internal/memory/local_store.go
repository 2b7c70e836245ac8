package memory

import (
	"context"
	"sync"
	"time"
)

// LocalStore keeps values in process memory. It is used when no Redis URL
// is configured and in tests. Expired values are dropped when read and by a
// sweep that Set runs at most once per ttl.
type LocalStore struct {
	mu        sync.Mutex
	items     map[string]localItem
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type localItem struct {
	value   []byte
	expires time.Time
}

// NewLocalStore returns an empty store. A zero ttl keeps values forever.
func NewLocalStore(ttl time.Duration) *LocalStore {
	s := &LocalStore{items: make(map[string]localItem), ttl: ttl, now: time.Now}
	s.lastSweep = s.now()
	return s
}

// Len reports how many values are held, expired or not.
func (s *LocalStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if !it.expires.IsZero() && !s.now().Before(it.expires) {
		delete(s.items, key)
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), it.value...), nil
}

func (s *LocalStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	it := localItem{value: append([]byte(nil), value...)}
	if s.ttl > 0 {
		it.expires = now.Add(s.ttl)
		if now.Sub(s.lastSweep) >= s.ttl {
			s.sweep(now)
		}
	}
	s.items[key] = it
	return nil
}

// sweep drops every expired value. Callers hold mu.
func (s *LocalStore) sweep(now time.Time) {
	for k, it := range s.items {
		if !it.expires.IsZero() && !now.Before(it.expires) {
			delete(s.items, k)
		}
	}
	s.lastSweep = now
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
