package sealkv

import (
	"bytes"
	"context"
	"fmt"
	"sort"
)

// Rows iterates decrypted scan results in ascending logical key order.
type Rows interface {
	// Next advances to the next entry and reports whether one is available.
	Next() bool

	// Entry returns the current entry. Valid until the next call to Next.
	Entry() Entry

	// Err returns the first error encountered during iteration, including
	// authentication and decoding failures. A failed row stops iteration;
	// it is never skipped silently.
	Err() error

	// Close releases underlying resources.
	Close() error
}

// Scan iterates rows with logical key in [start, end) in ascending key
// order. A nil start scans from the beginning, a nil end to the end.
//
// In KeyModePlaintext the backend's native range scan is used and rows are
// decrypted as the iterator advances. In KeyModeDeterministic storage keys
// carry no order, so the whole backend is iterated, every record decrypted,
// and entries filtered and sorted by their embedded logical key; the cost is
// O(total records) regardless of the range width.
func (s *Store) Scan(ctx context.Context, start, end []byte) (Rows, error) {
	if s.keyMode == KeyModeDeterministic {
		return s.scanFiltered(ctx, start, end)
	}

	it, err := s.backend.Scan(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("backend scan: %w", err)
	}
	return &streamRows{store: s, it: it}, nil
}

// streamRows decrypts rows lazily from a native backend range scan.
type streamRows struct {
	store *Store
	it    Iterator
	cur   Entry
	err   error
}

func (r *streamRows) Next() bool {
	if r.err != nil {
		return false
	}
	if !r.it.Next() {
		r.err = r.it.Err()
		return false
	}

	r.store.mu.RLock()
	key, row, err := r.store.openEntry(r.it.Value(), r.it.Key())
	r.store.mu.RUnlock()
	if err != nil {
		r.err = err
		return false
	}
	r.cur = Entry{Key: key, Row: row}
	return true
}

func (r *streamRows) Entry() Entry { return r.cur }

func (r *streamRows) Err() error { return r.err }

func (r *streamRows) Close() error { return r.it.Close() }

// scanFiltered performs the degraded scan for deterministic storage keys:
// full iteration, per-row decrypt, range filter on the embedded logical key,
// then client-side ordering.
func (s *Store) scanFiltered(ctx context.Context, start, end []byte) (Rows, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, err := s.backend.Scan(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("backend scan: %w", err)
	}
	defer it.Close()

	var entries []Entry
	for it.Next() {
		key, row, err := s.openEntry(it.Value(), it.Key())
		if err != nil {
			return nil, err
		}
		if !inRange(key, start, end) {
			continue
		}
		entries = append(entries, Entry{Key: key, Row: row})
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("backend scan: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Key, entries[j].Key) < 0
	})
	return &bufferedRows{entries: entries}, nil
}

func inRange(key, start, end []byte) bool {
	if start != nil && bytes.Compare(key, start) < 0 {
		return false
	}
	if end != nil && bytes.Compare(key, end) >= 0 {
		return false
	}
	return true
}

// bufferedRows serves pre-collected entries.
type bufferedRows struct {
	entries []Entry
	idx     int
	started bool
}

func (r *bufferedRows) Next() bool {
	if r.started {
		r.idx++
	}
	r.started = true
	return r.idx < len(r.entries)
}

func (r *bufferedRows) Entry() Entry { return r.entries[r.idx] }

func (r *bufferedRows) Err() error { return nil }

func (r *bufferedRows) Close() error { return nil }
