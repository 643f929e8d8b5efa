package store

import (
	"context"
	"sort"
	"sync"

	"github.com/SrJCBM/BDD-Avanzada/pkg/kv"
	"github.com/tidwall/match"
)

// MemStore is an in-memory implementation of the kv.Store interface.
// It uses maps protected by a RWMutex for thread-safe operations.
// Set members are returned in insertion order.
type MemStore struct {
	mu     sync.RWMutex
	data   map[string]string
	sets   map[string]*memberSet
	closed bool
}

type memberSet struct {
	order   []string
	members map[string]struct{}
}

func (s *memberSet) add(m string) {
	if _, ok := s.members[m]; ok {
		return
	}
	s.members[m] = struct{}{}
	s.order = append(s.order, m)
}

// Compile-time check to ensure MemStore implements kv.Store.
var _ kv.Store = (*MemStore)(nil)

// NewMemStore creates and returns a new MemStore instance.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]string),
		sets: make(map[string]*memberSet),
	}
}

// Get retrieves a value by key from the store.
func (s *MemStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, kv.ErrClosed
	}
	val, ok := s.data[key]
	return val, ok, nil
}

// Set stores a key-value pair in the store.
// A set stored under the same key is replaced.
func (s *MemStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	delete(s.sets, key)
	s.data[key] = value
	return nil
}

// Delete removes keys from the store. Missing keys are ignored.
func (s *MemStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	for _, key := range keys {
		delete(s.data, key)
		delete(s.sets, key)
	}
	return nil
}

// Keys returns the sorted keys, values and sets alike, matching pattern.
func (s *MemStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}
	keys := make([]string, 0)
	for key := range s.data {
		if match.Match(key, pattern) {
			keys = append(keys, key)
		}
	}
	for key := range s.sets {
		if match.Match(key, pattern) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// SAdd adds members to the set at key.
func (s *MemStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return kv.ErrClosed
	}
	set, ok := s.sets[key]
	if !ok {
		delete(s.data, key)
		set = &memberSet{members: make(map[string]struct{})}
		s.sets[key] = set
	}
	for _, m := range members {
		set.add(m)
	}
	return nil
}

// SMembers returns a copy of the set at key in insertion order.
func (s *MemStore) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, kv.ErrClosed
	}
	set, ok := s.sets[key]
	if !ok {
		return []string{}, nil
	}
	return append([]string(nil), set.order...), nil
}

// Close marks the store closed. Further calls return kv.ErrClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// memSnapshot is the serialized form of a MemStore used by Raft snapshots.
type memSnapshot struct {
	Values map[string]string   `json:"values"`
	Sets   map[string][]string `json:"sets"`
}

func (s *MemStore) dump() memSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := memSnapshot{
		Values: make(map[string]string, len(s.data)),
		Sets:   make(map[string][]string, len(s.sets)),
	}
	for k, v := range s.data {
		snap.Values[k] = v
	}
	for k, set := range s.sets {
		snap.Sets[k] = append([]string(nil), set.order...)
	}
	return snap
}

func (s *MemStore) load(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]string, len(snap.Values))
	s.sets = make(map[string]*memberSet, len(snap.Sets))
	for k, v := range snap.Values {
		s.data[k] = v
	}
	for k, members := range snap.Sets {
		set := &memberSet{members: make(map[string]struct{})}
		for _, m := range members {
			set.add(m)
		}
		s.sets[k] = set
	}
}
