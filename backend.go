package sealkv

import "context"

// Backend is the raw key/value contract a wrapped storage engine must
// implement. The adapter is generic over any Backend: it never interprets
// the values it hands over beyond treating them as opaque bytes, and it adds
// no concurrency or durability guarantees beyond the backend's own.
type Backend interface {
	// Get fetches the value stored under key. The second return value is
	// false when the key is absent; absence is not an error.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan iterates entries with key in [start, end) in ascending key
	// order. A nil start means from the beginning, a nil end means to the
	// end; Scan(ctx, nil, nil) iterates everything.
	Scan(ctx context.Context, start, end []byte) (Iterator, error)
}

// Iterator provides sequential access to key/value pairs from a Scan.
type Iterator interface {
	// Next advances the iterator and reports whether a pair is available.
	Next() bool

	// Key returns the current key. Valid until the next call to Next.
	Key() []byte

	// Value returns the current value. Valid until the next call to Next.
	Value() []byte

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases iterator resources.
	Close() error
}

// Transactor is implemented by backends that support transaction
// boundaries. The adapter forwards Begin/Commit/Rollback 1:1 and never adds
// isolation of its own.
type Transactor interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// KV is a single key/value pair for batch writes.
type KV struct {
	Key   []byte
	Value []byte
}

// BatchWriter is implemented by backends with native batch operations. When
// a backend does not implement it the adapter falls back to per-key writes.
type BatchWriter interface {
	BatchPut(ctx context.Context, pairs []KV) error
	BatchDelete(ctx context.Context, keys [][]byte) error
}
