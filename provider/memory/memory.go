// Package memory is an in-process backing store. It is the default when no
// provider is configured, and what tests inspect to see what was persisted.
package memory

import (
	"context"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/polycache/provider"
)

type item struct {
	v   []byte
	exp time.Time // zero => no TTL
}

func (it item) expired(now time.Time) bool { return !it.exp.IsZero() && !now.Before(it.exp) }

// Store is a mutex-guarded map. Values are copied on the way in and out.
type Store struct {
	mu  sync.RWMutex
	m   map[string]item
	now func() time.Time
}

var _ pr.Provider = (*Store)(nil)

func New() *Store {
	return &Store{m: make(map[string]item), now: time.Now}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	it, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now := s.now(); it.expired(now) {
		s.mu.Lock()
		// a Set may have replaced it since the read lock was released
		if cur, ok := s.m[key]; ok && cur.expired(now) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), it.v...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.m[key] = item{v: append([]byte(nil), value...), exp: exp}
	s.mu.Unlock()
	return true, nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

// Len returns the number of stored keys, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Keys returns the stored keys in no particular order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out
}
