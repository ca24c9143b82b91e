package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM standard nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
	// SaltSize is the salt length for PBKDF2 passphrase derivation.
	SaltSize = 32
	// PBKDF2Iterations follows the OWASP recommended minimum.
	PBKDF2Iterations = 600000

	// noncePrefixSize is the random per-instance portion of each nonce; the
	// remaining 8 bytes carry the monotonic counter.
	noncePrefixSize = NonceSize - 8
)

var (
	// ErrInvalidKey indicates key material of the wrong length.
	ErrInvalidKey = errors.New("invalid encryption key")
	// ErrKeyUnavailable indicates an operation was attempted after the key
	// material was wiped. This is a programming error, never retried.
	ErrKeyUnavailable = errors.New("key material has been wiped")
)

// Nonce is a single-use value for one AEAD seal operation. A (key, nonce)
// pair must never encrypt two different plaintexts.
type Nonce [NonceSize]byte

// KeyMaterial owns a symmetric key for the lifetime of a store and issues
// the nonces used with it. Nonce issuance is the one piece of shared mutable
// state in the encryption path and is safe for concurrent use: each nonce is
// a random per-instance prefix followed by an atomically incremented
// counter, so nonces are exactly unique within an instance and collide
// across restarts only with negligible probability.
type KeyMaterial struct {
	mu      sync.RWMutex
	key     []byte
	prefix  [noncePrefixSize]byte
	counter atomic.Uint64
}

// NewKeyMaterial creates key material from a caller-supplied 32-byte secret.
// The secret is copied; the caller may zero its own copy afterwards.
func NewKeyMaterial(key []byte) (*KeyMaterial, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	m := &KeyMaterial{key: make([]byte, KeySize)}
	copy(m.key, key)

	if _, err := rand.Read(m.prefix[:]); err != nil {
		return nil, err
	}
	return m, nil
}

// NewKeyMaterialFromPassphrase derives key material from a passphrase using
// PBKDF2-SHA256. The same passphrase and salt always derive the same key.
func NewKeyMaterialFromPassphrase(passphrase string, salt []byte) (*KeyMaterial, error) {
	if len(salt) != SaltSize {
		return nil, errors.New("salt must be 32 bytes")
	}

	key := pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New)
	defer SecureZero(key)

	return NewKeyMaterial(key)
}

// GenerateKey generates a cryptographically secure random encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// NextNonce issues a fresh nonce. Safe for concurrent callers.
func (m *KeyMaterial) NextNonce() (Nonce, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nonce Nonce
	if m.key == nil {
		return nonce, ErrKeyUnavailable
	}

	copy(nonce[:noncePrefixSize], m.prefix[:])
	binary.BigEndian.PutUint64(nonce[noncePrefixSize:], m.counter.Add(1))
	return nonce, nil
}

// DeriveSubkey derives a purpose-specific subkey via HMAC-SHA256 over the
// master key. The same context always yields the same subkey, so it can be
// used for deterministic constructions such as storage-key hashing without
// ever exposing the master key itself.
func (m *KeyMaterial) DeriveSubkey(context []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.key == nil {
		return nil, ErrKeyUnavailable
	}

	mac := hmac.New(sha256.New, m.key)
	mac.Write(context)
	return mac.Sum(nil), nil
}

// Wipe zeroes the key and permanently retires the material. Any later
// operation fails with ErrKeyUnavailable. Safe to call more than once.
func (m *KeyMaterial) Wipe() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		SecureZero(m.key)
		m.key = nil
	}
}

// keyCopy returns a copy of the live key for use within the package.
// Callers are responsible for zeroing the copy when done.
func (m *KeyMaterial) keyCopy() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.key == nil {
		return nil, ErrKeyUnavailable
	}

	key := make([]byte, KeySize)
	copy(key, m.key)
	return key, nil
}
