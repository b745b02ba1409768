package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/quakecast/quake-delivery-service/internal/domain/model"
)

// MemoryStore keeps subscriptions in process memory. Used for development and tests;
// subscriptions do not survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]*model.PushSubscription

	unavailable atomic.Bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*model.PushSubscription)}
}

// SetAvailable simulates an outage when v is false.
func (s *MemoryStore) SetAvailable(v bool) { s.unavailable.Store(!v) }

func (s *MemoryStore) Available(context.Context) bool { return !s.unavailable.Load() }

func (s *MemoryStore) Exists(_ context.Context, endpoint string) (bool, error) {
	if s.unavailable.Load() {
		return false, model.ErrStoreUnavailable
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subs[endpoint]
	return ok, nil
}

func (s *MemoryStore) Create(_ context.Context, sub *model.PushSubscription) error {
	if s.unavailable.Load() {
		return model.ErrStoreUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.Endpoint]; ok {
		return model.ErrDuplicateSubscription
	}
	cp := *sub
	s.subs[sub.Endpoint] = &cp
	return nil
}

// FindAll returns copies ordered by creation time.
func (s *MemoryStore) FindAll(context.Context) ([]*model.PushSubscription, error) {
	if s.unavailable.Load() {
		return nil, model.ErrStoreUnavailable
	}
	s.mu.RLock()
	out := make([]*model.PushSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		cp := *sub
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, endpoint string) error {
	if s.unavailable.Load() {
		return model.ErrStoreUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, endpoint)
	return nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }
