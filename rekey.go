package sealkv

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"go.uber.org/zap"

	"sealkv/codec"
	"sealkv/crypto"
)

// ChangeKey decrypts every record under the current key and rewrites it
// sealed under newMaterial, with fresh nonces throughout. On backends that
// support transactions the rewrite is atomic: any failure rolls the backend
// back and the store keeps its current key. In deterministic key mode the
// storage keys are recomputed under the new material's subkey, so old
// storage keys are deleted as part of the rewrite.
//
// Create a backup before calling this on backends without transaction
// support: a mid-rewrite failure there leaves records under two keys.
//
// The store is exclusively locked for the duration of the call: concurrent
// Get/Put/Delete block until the rewrite finishes and then run entirely
// under the new key. Scan iterators opened before the call may fail with
// ErrAuthenticationFailed once the key has changed.
//
// On success the store owns newMaterial and the old material is wiped.
func (s *Store) ChangeKey(ctx context.Context, newMaterial *crypto.KeyMaterial) error {
	if newMaterial == nil {
		return fmt.Errorf("new key material is required")
	}
	if s.inTxn.Load() {
		return ErrTransactionActive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newEngine := crypto.NewEngine(newMaterial)
	var newMAC []byte
	if s.keyMode == KeyModeDeterministic {
		mac, err := newMaterial.DeriveSubkey(storageKeyContext)
		if err != nil {
			return fmt.Errorf("failed to derive storage key subkey: %w", err)
		}
		newMAC = mac
	}

	// Decrypt everything up front; a record that fails to open aborts the
	// re-key before the backend is modified at all.
	type rewrite struct {
		oldSK []byte
		newSK []byte
		entry Entry
	}
	it, err := s.backend.Scan(ctx, nil, nil)
	if err != nil {
		return fmt.Errorf("backend scan: %w", err)
	}

	var rewrites []rewrite
	for it.Next() {
		key, row, err := s.openEntry(it.Value(), it.Key())
		if err != nil {
			it.Close()
			return err
		}

		oldSK := append([]byte(nil), it.Key()...)
		newSK := oldSK
		if s.keyMode == KeyModeDeterministic {
			newSK = deriveStorageKey(newMAC, key)
		}
		rewrites = append(rewrites, rewrite{oldSK: oldSK, newSK: newSK, entry: Entry{Key: key, Row: row}})
	}
	if err := it.Err(); err != nil {
		it.Close()
		return fmt.Errorf("backend scan: %w", err)
	}
	if err := it.Close(); err != nil {
		return fmt.Errorf("backend scan: %w", err)
	}

	t, transactional := s.backend.(Transactor)
	if transactional {
		if err := t.Begin(ctx); err != nil {
			return fmt.Errorf("backend begin: %w", err)
		}
	}

	apply := func() error {
		for _, rw := range rewrites {
			nonce, err := newMaterial.NextNonce()
			if err != nil {
				return err
			}
			record, err := newEngine.Seal(codec.EncodeEntry(rw.entry.Key, rw.entry.Row), nonce, rw.newSK)
			if err != nil {
				return err
			}
			if !bytes.Equal(rw.oldSK, rw.newSK) {
				if err := s.backend.Delete(ctx, rw.oldSK); err != nil {
					return fmt.Errorf("backend delete: %w", err)
				}
			}
			if err := s.backend.Put(ctx, rw.newSK, record); err != nil {
				return fmt.Errorf("backend put: %w", err)
			}
		}
		return nil
	}

	if err := apply(); err != nil {
		if transactional {
			if rbErr := t.Rollback(ctx); rbErr != nil {
				s.logger.Error("rollback after failed re-key",
					zap.String("store", s.id),
					zap.Error(rbErr))
			}
		}
		return err
	}

	if transactional {
		if err := t.Commit(ctx); err != nil {
			return fmt.Errorf("backend commit: %w", err)
		}
	}

	old := s.material
	oldMAC := s.keyMAC
	s.material = newMaterial
	s.engine = newEngine
	s.keyMAC = newMAC

	old.Wipe()
	if oldMAC != nil {
		crypto.SecureZero(oldMAC)
	}

	s.logger.Info("key changed",
		zap.String("store", s.id),
		zap.Int("records", len(rewrites)))
	return nil
}

func deriveStorageKey(subkey, key []byte) []byte {
	h := hmac.New(sha256.New, subkey)
	h.Write(key)
	return h.Sum(nil)
}

// MigrationResult contains the outcome of EncryptExisting.
type MigrationResult struct {
	Total    int      `json:"total"`
	Migrated int      `json:"migrated"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// EncryptExisting adopts encryption on a backend that already holds
// plaintext rows (canonical row encoding keyed by logical key). Every value
// that opens under the current key is counted as already encrypted and
// skipped; plaintext rows are sealed and rewritten, moving to their
// deterministic storage key when that mode is active. Values that are
// neither are reported in Errors and left untouched.
//
// With dryRun set, nothing is written; only the counts are produced.
func (s *Store) EncryptExisting(ctx context.Context, dryRun bool) (*MigrationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, err := s.backend.Scan(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("backend scan: %w", err)
	}
	defer it.Close()

	result := &MigrationResult{}
	var pending []Entry
	var obsolete [][]byte

	for it.Next() {
		result.Total++

		if crypto.IsSealedRecord(it.Value()) {
			if _, _, err := s.openEntry(it.Value(), it.Key()); err == nil {
				result.Skipped++
				continue
			}
		}

		row, err := codec.Decode(it.Value())
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("key %x: neither sealed record nor plaintext row", it.Key()))
			continue
		}

		key := append([]byte(nil), it.Key()...)
		pending = append(pending, Entry{Key: key, Row: row})
		if s.keyMode == KeyModeDeterministic {
			obsolete = append(obsolete, key)
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("backend scan: %w", err)
	}

	if dryRun {
		result.Migrated = len(pending)
		return result, nil
	}

	for i, e := range pending {
		record, sk, err := s.seal(e.Key, e.Row)
		if err != nil {
			return result, err
		}
		if err := s.backend.Put(ctx, sk, record); err != nil {
			return result, fmt.Errorf("backend put: %w", err)
		}
		if s.keyMode == KeyModeDeterministic {
			if err := s.backend.Delete(ctx, obsolete[i]); err != nil {
				return result, fmt.Errorf("backend delete: %w", err)
			}
		}
		result.Migrated++
	}

	s.logger.Info("migration completed",
		zap.String("store", s.id),
		zap.Int("total", result.Total),
		zap.Int("migrated", result.Migrated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}
