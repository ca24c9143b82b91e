// Package memkv implements an ordered in-memory backend for sealkv. It is
// the reference backend used throughout the test suite and is suitable for
// development and prototyping; it offers no durability.
package memkv

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"

	"sealkv"
)

// ErrTransactionActive is returned by Begin while a transaction is open;
// memkv supports one transaction at a time.
var ErrTransactionActive = errors.New("memkv: transaction already in progress")

// ErrNotInTransaction is returned by Commit or Rollback without Begin.
var ErrNotInTransaction = errors.New("memkv: no transaction in progress")

// Store is an in-memory Backend with ordered scans, batch writes and
// single-writer snapshot transactions. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	data     map[string][]byte
	snapshot map[string][]byte // pre-transaction state, nil when idle
}

// Interface conformance.
var (
	_ sealkv.Backend     = (*Store)(nil)
	_ sealkv.Transactor  = (*Store)(nil)
	_ sealkv.BatchWriter = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get fetches the value stored under key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put stores value under key.
func (s *Store) Put(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, string(key))
	return nil
}

// Scan iterates entries with key in [start, end) in ascending key order.
// The iterator works over a point-in-time copy, so mutations made while
// iterating are not observed.
func (s *Store) Scan(ctx context.Context, start, end []byte) (sealkv.Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if start != nil && bytes.Compare([]byte(k), start) < 0 {
			continue
		}
		if end != nil && bytes.Compare([]byte(k), end) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]sealkv.KV, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, sealkv.KV{
			Key:   []byte(k),
			Value: append([]byte(nil), s.data[k]...),
		})
	}
	return &iterator{pairs: pairs, idx: -1}, nil
}

// BatchPut stores multiple pairs in one critical section.
func (s *Store) BatchPut(ctx context.Context, pairs []sealkv.KV) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range pairs {
		s.data[string(p.Key)] = append([]byte(nil), p.Value...)
	}
	return nil
}

// BatchDelete removes multiple keys in one critical section.
func (s *Store) BatchDelete(ctx context.Context, keys [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.data, string(k))
	}
	return nil
}

// Begin snapshots the current state. One transaction at a time.
func (s *Store) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil {
		return ErrTransactionActive
	}

	snap := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		snap[k] = v
	}
	s.snapshot = snap
	return nil
}

// Commit discards the snapshot, keeping all writes since Begin.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot == nil {
		return ErrNotInTransaction
	}
	s.snapshot = nil
	return nil
}

// Rollback restores the snapshot taken at Begin.
func (s *Store) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot == nil {
		return ErrNotInTransaction
	}
	s.data = s.snapshot
	s.snapshot = nil
	return nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

type iterator struct {
	pairs []sealkv.KV
	idx   int
}

func (it *iterator) Next() bool {
	it.idx++
	return it.idx < len(it.pairs)
}

func (it *iterator) Key() []byte { return it.pairs[it.idx].Key }

func (it *iterator) Value() []byte { return it.pairs[it.idx].Value }

func (it *iterator) Err() error { return nil }

func (it *iterator) Close() error { return nil }
