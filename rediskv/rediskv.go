// Package rediskv implements a Redis-backed backend for sealkv using
// go-redis. Redis does not order its keyspace, so Scan gathers matching
// keys, sorts them client-side and fetches values in one MGET. Transactions
// map to a Redis transactional pipeline (MULTI/EXEC): writes issued between
// Begin and Commit are queued and applied atomically on Commit, and
// discarded on Rollback. Reads inside a transaction observe committed state
// only.
package rediskv

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"sealkv"
)

// DefaultPrefix namespaces sealkv entries within the Redis keyspace.
const DefaultPrefix = "sealkv:"

// ErrTransactionActive is returned by Begin while a transaction is open.
var ErrTransactionActive = errors.New("rediskv: transaction already in progress")

// ErrNotInTransaction is returned by Commit or Rollback without Begin.
var ErrNotInTransaction = errors.New("rediskv: no transaction in progress")

// Store adapts a Redis client to the sealkv backend contract.
type Store struct {
	rdb    *redis.Client
	prefix string

	mu   sync.Mutex
	pipe redis.Pipeliner // non-nil while a transaction is open
}

var (
	_ sealkv.Backend     = (*Store)(nil)
	_ sealkv.Transactor  = (*Store)(nil)
	_ sealkv.BatchWriter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the key namespace prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a Store over an existing Redis client.
func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) rkey(key []byte) string {
	return s.prefix + string(key)
}

// Get fetches the value stored under key.
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, s.rkey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put stores value under key. Inside a transaction the write is queued on
// the pipeline and applied on Commit.
func (s *Store) Put(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe != nil {
		s.pipe.Set(ctx, s.rkey(key), value, 0)
		return nil
	}
	return s.rdb.Set(ctx, s.rkey(key), value, 0).Err()
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe != nil {
		s.pipe.Del(ctx, s.rkey(key))
		return nil
	}
	return s.rdb.Del(ctx, s.rkey(key)).Err()
}

// Scan iterates entries with key in [start, end) in ascending key order.
// The snapshot is taken key-first: keys are gathered with SCAN, sorted, and
// their values fetched in a single MGET.
func (s *Store) Scan(ctx context.Context, start, end []byte) (sealkv.Iterator, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()[len(s.prefix):]
		if start != nil && bytes.Compare([]byte(k), start) < 0 {
			continue
		}
		if end != nil && bytes.Compare([]byte(k), end) >= 0 {
			continue
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		return &iterator{}, nil
	}

	rkeys := make([]string, len(keys))
	for i, k := range keys {
		rkeys[i] = s.prefix + k
	}
	values, err := s.rdb.MGet(ctx, rkeys...).Result()
	if err != nil {
		return nil, err
	}

	pairs := make([]sealkv.KV, 0, len(keys))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Key vanished between SCAN and MGET.
			continue
		}
		pairs = append(pairs, sealkv.KV{Key: []byte(keys[i]), Value: []byte(str)})
	}
	return &iterator{pairs: pairs, idx: -1}, nil
}

// BatchPut applies all writes through a single pipeline round trip.
func (s *Store) BatchPut(ctx context.Context, pairs []sealkv.KV) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe != nil {
		for _, p := range pairs {
			s.pipe.Set(ctx, s.rkey(p.Key), p.Value, 0)
		}
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, p := range pairs {
		pipe.Set(ctx, s.rkey(p.Key), p.Value, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// BatchDelete removes all keys through a single pipeline round trip.
func (s *Store) BatchDelete(ctx context.Context, keys [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rkeys := make([]string, len(keys))
	for i, k := range keys {
		rkeys[i] = s.rkey(k)
	}

	if s.pipe != nil {
		s.pipe.Del(ctx, rkeys...)
		return nil
	}
	return s.rdb.Del(ctx, rkeys...).Err()
}

// Begin opens a transactional pipeline.
func (s *Store) Begin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe != nil {
		return ErrTransactionActive
	}
	s.pipe = s.rdb.TxPipeline()
	return nil
}

// Commit executes all queued writes atomically.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe == nil {
		return ErrNotInTransaction
	}
	pipe := s.pipe
	s.pipe = nil
	_, err := pipe.Exec(ctx)
	return err
}

// Rollback discards all queued writes.
func (s *Store) Rollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe == nil {
		return ErrNotInTransaction
	}
	s.pipe.Discard()
	s.pipe = nil
	return nil
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
