package sealkv

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrTransactionActive indicates Begin while a transaction is already in
// progress on this store.
var ErrTransactionActive = errors.New("transaction already in progress")

// Begin starts a transaction on the wrapped backend. The adapter owns no
// transaction state of its own: atomicity and isolation are exactly the
// backend's. Writes issued before Commit are each sealed independently with
// a fresh nonce; if any of them fails to encrypt, the transaction is rolled
// back and the failure surfaced instead of a partial commit.
func (s *Store) Begin(ctx context.Context) error {
	t, ok := s.backend.(Transactor)
	if !ok {
		return ErrTransactionsUnsupported
	}

	if !s.inTxn.CompareAndSwap(false, true) {
		return ErrTransactionActive
	}

	if err := t.Begin(ctx); err != nil {
		s.inTxn.Store(false)
		return fmt.Errorf("backend begin: %w", err)
	}

	s.logger.Debug("transaction begin", zap.String("store", s.id))
	return nil
}

// Commit commits the in-flight backend transaction.
func (s *Store) Commit(ctx context.Context) error {
	t, ok := s.backend.(Transactor)
	if !ok {
		return ErrTransactionsUnsupported
	}

	if !s.inTxn.CompareAndSwap(true, false) {
		return ErrNotInTransaction
	}

	if err := t.Commit(ctx); err != nil {
		return fmt.Errorf("backend commit: %w", err)
	}

	s.logger.Debug("transaction commit", zap.String("store", s.id))
	return nil
}

// Rollback discards the in-flight backend transaction.
func (s *Store) Rollback(ctx context.Context) error {
	t, ok := s.backend.(Transactor)
	if !ok {
		return ErrTransactionsUnsupported
	}

	if !s.inTxn.CompareAndSwap(true, false) {
		return ErrNotInTransaction
	}

	if err := t.Rollback(ctx); err != nil {
		return fmt.Errorf("backend rollback: %w", err)
	}

	s.logger.Debug("transaction rollback", zap.String("store", s.id))
	return nil
}
