// Package sealkv provides transparent encryption at rest for pluggable
// key/value storage backends, with AES-256-GCM authenticated encryption and
// multiple key management providers.
//
// # Quick Start
//
// Wrap any Backend so that every persisted row is sealed before it reaches
// the storage medium:
//
//	material, err := crypto.NewKeyMaterial(key)
//	store, err := sealkv.New(memkv.New(), material)
//
//	err = store.Put(ctx, []byte("alice"), codec.Row{codec.Int(30)})
//	row, found, err := store.Get(ctx, []byte("alice"))
//
// Reads return the same logical rows an unencrypted backend would; the
// backend itself only ever observes sealed records.
//
// # Key Modes
//
// Storage keys are handled per the configured KeyMode:
//   - KeyModePlaintext: logical keys pass through unchanged, preserving the
//     backend's native ordered range scans.
//   - KeyModeDeterministic: storage keys are an HMAC of the logical key, so
//     the backend never sees key contents; range scans degrade to a full
//     iteration with per-row decrypt and filter.
//
// # Key Providers
//
// Three key providers are supported for sourcing the master key:
//   - Local:   Environment variables (ENCRYPTION_KEY)
//   - AWS KMS: AWS Key Management Service
//   - Vault:   HashiCorp Vault
package sealkv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sealkv/codec"
	"sealkv/crypto"
)

// KeyMode selects how logical keys map to backend storage keys.
type KeyMode string

const (
	// KeyModePlaintext stores logical keys unchanged. Range scans keep the
	// backend's native pruning and ordering, at the cost of key
	// confidentiality.
	KeyModePlaintext KeyMode = "plaintext"

	// KeyModeDeterministic stores an HMAC-SHA256 digest of the logical key,
	// derived from a dedicated subkey. Point reads and writes stay O(1);
	// range scans degrade to full iteration with decrypt-and-filter.
	KeyModeDeterministic KeyMode = "deterministic"
)

// storageKeyContext namespaces the subkey used for deterministic storage
// keys so it is never the row encryption key itself.
var storageKeyContext = []byte("sealkv/storage-key/v1")

// Entry pairs a logical key with its row. It is the unit returned by Scan
// and accepted by BatchPut.
type Entry struct {
	Key []byte
	Row codec.Row
}

// Store is the encryption-at-rest adapter. It implements the storage
// contract a host query engine expects while keeping every persisted value
// opaque to the wrapped backend. A Store is stateless per call except for
// nonce issuance and the transaction flag; it is safe for concurrent use to
// the extent the wrapped backend is.
type Store struct {
	backend Backend
	keyMode KeyMode
	logger  *zap.Logger
	id      string
	inTxn   atomic.Bool

	// mu guards the crypto state ChangeKey swaps and Close retires, so an
	// operation never observes a new engine paired with an old subkey.
	mu       sync.RWMutex
	material *crypto.KeyMaterial
	engine   *crypto.Engine
	keyMAC   []byte // deterministic-mode subkey, nil in plaintext mode
}

// Option configures a Store at construction.
type Option func(*Store)

// WithLogger sets the structured logger. Defaults to a no-op logger. The
// store never logs plaintext, keys or key material.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithKeyMode selects the storage key mode. Defaults to KeyModePlaintext.
func WithKeyMode(mode KeyMode) Option {
	return func(s *Store) { s.keyMode = mode }
}

// New creates a Store over the given backend and key material. The material
// is owned by the store from this point on and is wiped by Close.
func New(backend Backend, material *crypto.KeyMaterial, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if material == nil {
		return nil, fmt.Errorf("key material is required")
	}

	s := &Store{
		backend:  backend,
		material: material,
		engine:   crypto.NewEngine(material),
		keyMode:  KeyModePlaintext,
		logger:   zap.NewNop(),
		id:       uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch s.keyMode {
	case KeyModePlaintext:
	case KeyModeDeterministic:
		mac, err := material.DeriveSubkey(storageKeyContext)
		if err != nil {
			return nil, fmt.Errorf("failed to derive storage key subkey: %w", err)
		}
		s.keyMAC = mac
	default:
		return nil, fmt.Errorf("unknown key mode %q", s.keyMode)
	}

	return s, nil
}

// NewFromProvider creates a Store whose master key is sourced from a
// KeyProvider. The fetched key bytes are wiped once the material owns its
// own copy.
func NewFromProvider(ctx context.Context, backend Backend, provider crypto.KeyProvider, opts ...Option) (*Store, error) {
	key, err := provider.GetKey(ctx, provider.KeyID())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key from provider %s: %w", provider.KeyID(), err)
	}
	defer crypto.SecureZero(key)

	material, err := crypto.NewKeyMaterial(key)
	if err != nil {
		return nil, err
	}

	return New(backend, material, opts...)
}

// ID returns the store's instance identifier, used for log correlation.
func (s *Store) ID() string { return s.id }

// Mode returns the configured key mode.
func (s *Store) Mode() KeyMode { return s.keyMode }

// Get fetches and decrypts the row stored under key. The second return
// value is false when the key is absent. A record that fails to
// authenticate yields ErrAuthenticationFailed; a record that decrypts but
// does not decode yields ErrCorruptFormat. In both cases the row is
// unavailable, never empty.
func (s *Store) Get(ctx context.Context, key []byte) (codec.Row, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sk, err := s.storageKey(key)
	if err != nil {
		return nil, false, err
	}

	raw, found, err := s.backend.Get(ctx, sk)
	if err != nil {
		return nil, false, fmt.Errorf("backend get: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	_, row, err := s.openEntry(raw, sk)
	if err != nil {
		return nil, false, err
	}

	s.logger.Debug("get",
		zap.String("store", s.id),
		zap.Int("record_bytes", len(raw)))
	return row, true, nil
}

// Put encodes, seals and persists a row under key. The sealed record is
// fully materialized before the backend is touched, so a cancelled or
// failed call never leaves a partially encrypted value behind: exactly one
// backend write happens per call, or none.
func (s *Store) Put(ctx context.Context, key []byte, row codec.Row) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, sk, err := s.seal(key, row)
	if err != nil {
		return s.abortOnSealFailure(ctx, err)
	}

	if err := s.backend.Put(ctx, sk, record); err != nil {
		return fmt.Errorf("backend put: %w", err)
	}

	s.logger.Debug("put",
		zap.String("store", s.id),
		zap.Int("record_bytes", len(record)))
	return nil
}

// Delete removes the record stored under key. No plaintext is involved; the
// call is forwarded to the backend with only the storage key mapping
// applied.
func (s *Store) Delete(ctx context.Context, key []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sk, err := s.storageKey(key)
	if err != nil {
		return err
	}

	if err := s.backend.Delete(ctx, sk); err != nil {
		return fmt.Errorf("backend delete: %w", err)
	}
	return nil
}

// Close wipes the key material. The store is unusable afterwards: every
// operation fails with ErrKeyUnavailable. Safe to call concurrently with
// other operations; those in flight either complete or fail with
// ErrKeyUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.material.Wipe()
	if s.keyMAC != nil {
		crypto.SecureZero(s.keyMAC)
		s.keyMAC = nil
	}
	return nil
}

// storageKey maps a logical key to the key handed to the backend. The
// caller must hold s.mu.
func (s *Store) storageKey(key []byte) ([]byte, error) {
	if s.keyMode == KeyModePlaintext {
		return key, nil
	}
	if s.keyMAC == nil {
		return nil, crypto.ErrKeyUnavailable
	}
	return deriveStorageKey(s.keyMAC, key), nil
}

// seal encodes a (key, row) entry and encrypts it under a fresh nonce with
// the storage key as associated data. The caller must hold s.mu.
func (s *Store) seal(key []byte, row codec.Row) (record, sk []byte, err error) {
	sk, err = s.storageKey(key)
	if err != nil {
		return nil, nil, err
	}

	nonce, err := s.material.NextNonce()
	if err != nil {
		return nil, nil, err
	}

	record, err = s.engine.Seal(codec.EncodeEntry(key, row), nonce, sk)
	if err != nil {
		return nil, nil, err
	}
	return record, sk, nil
}

// openEntry authenticates, decrypts and decodes a persisted record. The
// caller must hold s.mu.
func (s *Store) openEntry(record, sk []byte) ([]byte, codec.Row, error) {
	plain, err := s.engine.Open(record, sk)
	if err != nil {
		return nil, nil, err
	}

	key, row, err := codec.DecodeEntry(plain)
	if err != nil {
		return nil, nil, err
	}
	return key, row, nil
}

// abortOnSealFailure rolls back an in-flight transaction when encryption or
// encoding fails mid-transaction, so the failure can never become a partial
// commit. The original error is surfaced; a rollback failure is logged.
func (s *Store) abortOnSealFailure(ctx context.Context, err error) error {
	if !s.inTxn.CompareAndSwap(true, false) {
		return err
	}

	t, ok := s.backend.(Transactor)
	if !ok {
		return err
	}
	if rbErr := t.Rollback(ctx); rbErr != nil {
		s.logger.Error("rollback after failed encryption",
			zap.String("store", s.id),
			zap.Error(rbErr))
	}
	return err
}
