package sealkv

import (
	"context"
	"fmt"
)

// BatchPut seals and persists multiple entries. Every record is fully
// sealed before the first backend write is issued, so an encryption failure
// on any entry leaves the backend untouched (and rolls back an in-flight
// transaction). Each entry gets its own fresh nonce.
//
// When the backend implements BatchWriter its native batch write is used;
// otherwise the entries are written one at a time.
func (s *Store) BatchPut(ctx context.Context, entries []Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([]KV, 0, len(entries))
	for _, e := range entries {
		record, sk, err := s.seal(e.Key, e.Row)
		if err != nil {
			return s.abortOnSealFailure(ctx, err)
		}
		pairs = append(pairs, KV{Key: sk, Value: record})
	}

	if bw, ok := s.backend.(BatchWriter); ok {
		if err := bw.BatchPut(ctx, pairs); err != nil {
			return fmt.Errorf("backend batch put: %w", err)
		}
		return nil
	}

	for _, p := range pairs {
		if err := s.backend.Put(ctx, p.Key, p.Value); err != nil {
			return fmt.Errorf("backend put: %w", err)
		}
	}
	return nil
}

// BatchDelete removes multiple logical keys.
func (s *Store) BatchDelete(ctx context.Context, keys [][]byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sks := make([][]byte, 0, len(keys))
	for _, k := range keys {
		sk, err := s.storageKey(k)
		if err != nil {
			return err
		}
		sks = append(sks, sk)
	}

	if bw, ok := s.backend.(BatchWriter); ok {
		if err := bw.BatchDelete(ctx, sks); err != nil {
			return fmt.Errorf("backend batch delete: %w", err)
		}
		return nil
	}

	for _, sk := range sks {
		if err := s.backend.Delete(ctx, sk); err != nil {
			return fmt.Errorf("backend delete: %w", err)
		}
	}
	return nil
}
