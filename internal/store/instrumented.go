package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/SrJCBM/BDD-Avanzada/pkg/kv"
)

// Operation names reported by InstrumentedStore.
const (
	OpGet      = "get"
	OpSet      = "set"
	OpDelete   = "delete"
	OpKeys     = "keys"
	OpSAdd     = "sadd"
	OpSMembers = "smembers"
)

var operations = []string{OpGet, OpSet, OpDelete, OpKeys, OpSAdd, OpSMembers}

// opMetrics holds timing statistics for one store operation.
// Uses atomic operations for thread-safe updates without locks.
type opMetrics struct {
	count     atomic.Uint64
	errors    atomic.Uint64
	latencyNs atomic.Uint64 // cumulative
}

// InstrumentedStore wraps any kv.Store implementation with timing metrics.
// This pattern works for every backend, local or remote.
type InstrumentedStore struct {
	store   kv.Store
	metrics map[string]*opMetrics
}

// Compile-time check to ensure InstrumentedStore implements kv.Store.
var _ kv.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps a store with instrumentation.
func NewInstrumentedStore(store kv.Store) *InstrumentedStore {
	m := make(map[string]*opMetrics, len(operations))
	for _, op := range operations {
		m[op] = &opMetrics{}
	}
	return &InstrumentedStore{
		store:   store,
		metrics: m,
	}
}

// Unwrap returns the decorated store.
func (s *InstrumentedStore) Unwrap() kv.Store {
	return s.store
}

func (s *InstrumentedStore) record(op string, start time.Time, err error) {
	m := s.metrics[op]
	m.count.Add(1)
	m.latencyNs.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		m.errors.Add(1)
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	value, found, err := s.store.Get(ctx, key)
	s.record(OpGet, start, err)
	return value, found, err
}

func (s *InstrumentedStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.store.Set(ctx, key, value)
	s.record(OpSet, start, err)
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := s.store.Delete(ctx, keys...)
	s.record(OpDelete, start, err)
	return err
}

func (s *InstrumentedStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	start := time.Now()
	keys, err := s.store.Keys(ctx, pattern)
	s.record(OpKeys, start, err)
	return keys, err
}

func (s *InstrumentedStore) SAdd(ctx context.Context, key string, members ...string) error {
	start := time.Now()
	err := s.store.SAdd(ctx, key, members...)
	s.record(OpSAdd, start, err)
	return err
}

func (s *InstrumentedStore) SMembers(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	members, err := s.store.SMembers(ctx, key)
	s.record(OpSMembers, start, err)
	return members, err
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}

// OpSnapshot is a point-in-time view of one operation's metrics.
type OpSnapshot struct {
	Count      uint64
	Errors     uint64
	AvgLatency time.Duration
}

// MetricsSnapshot is a point-in-time view of metrics, keyed by operation name.
type MetricsSnapshot map[string]OpSnapshot

// GetMetrics returns a snapshot of current metrics.
func (s *InstrumentedStore) GetMetrics() MetricsSnapshot {
	snap := make(MetricsSnapshot, len(s.metrics))
	for op, m := range s.metrics {
		count := m.count.Load()
		snap[op] = OpSnapshot{
			Count:      count,
			Errors:     m.errors.Load(),
			AvgLatency: avgLatency(m.latencyNs.Load(), count),
		}
	}
	return snap
}

// ResetMetrics clears all metrics counters.
func (s *InstrumentedStore) ResetMetrics() {
	for _, m := range s.metrics {
		m.count.Store(0)
		m.errors.Store(0)
		m.latencyNs.Store(0)
	}
}

func avgLatency(totalNs, count uint64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(totalNs / count)
}
