package sealkv

import (
	"errors"

	"sealkv/codec"
	"sealkv/crypto"
)

// Error taxonomy. Backend failures are passed through wrapped with %w and
// are not part of this list; the adapter never retries them.
var (
	// ErrAuthenticationFailed indicates a record failed to authenticate:
	// tampered bytes, a record moved under a different key, or the wrong
	// encryption key. The row is unavailable, not empty.
	ErrAuthenticationFailed = crypto.ErrAuthenticationFailed

	// ErrCorruptFormat indicates a row that decrypted successfully but did
	// not decode. This is a data integrity failure, never skipped silently.
	ErrCorruptFormat = codec.ErrCorruptFormat

	// ErrKeyUnavailable indicates an operation after the key material was
	// wiped. Programming error class; fatal.
	ErrKeyUnavailable = crypto.ErrKeyUnavailable

	// ErrTransactionsUnsupported indicates the wrapped backend does not
	// implement Transactor.
	ErrTransactionsUnsupported = errors.New("wrapped backend does not support transactions")

	// ErrNotInTransaction indicates Commit or Rollback without a matching
	// Begin.
	ErrNotInTransaction = errors.New("no transaction in progress")
)
