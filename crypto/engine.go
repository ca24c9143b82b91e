// Package crypto implements the AEAD cipher engine, key material handling
// and key providers for encryption at rest. The engine produces versioned
// sealed records whose layout is a durability contract: records written by
// one release must decrypt under later releases or fail explicitly.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// RecordVersion is the current sealed record format version, the first byte
// of every persisted value.
const RecordVersion = 1

// recordOverhead is the fixed size added to every plaintext by sealing.
const recordOverhead = 1 + NonceSize + TagSize

var (
	// ErrAuthenticationFailed indicates ciphertext or tag mismatch: the
	// record was tampered with, moved to a different key, or sealed under a
	// different encryption key. Never retried.
	ErrAuthenticationFailed = errors.New("authentication failed - data may be tampered")
	// ErrInvalidRecord indicates bytes too short or malformed to be a
	// sealed record.
	ErrInvalidRecord = errors.New("invalid sealed record")
	// ErrUnsupportedVersion indicates a record written with a format
	// version this build does not understand.
	ErrUnsupportedVersion = errors.New("unsupported record version")
)

// Engine seals and opens records with AES-256-GCM using the key held by a
// KeyMaterial. It is a pure function over its inputs and holds no mutable
// state of its own.
type Engine struct {
	material *KeyMaterial
}

// NewEngine creates an engine over the given key material.
func NewEngine(material *KeyMaterial) *Engine {
	return &Engine{material: material}
}

// Seal encrypts plaintext under the engine's key with the given nonce and
// associated data, returning the full persisted record:
//
//	version(1) || nonce(12) || ciphertext+tag
//
// The associated data is authenticated but not encrypted; binding it to the
// record's storage key makes a record copied under another key fail to open.
func (e *Engine) Seal(plaintext []byte, nonce Nonce, aad []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	record := make([]byte, 0, recordOverhead+len(plaintext))
	record = append(record, RecordVersion)
	record = append(record, nonce[:]...)
	return gcm.Seal(record, nonce[:], plaintext, aad), nil
}

// Open authenticates and decrypts a sealed record. The associated data must
// match what was passed to Seal; any mutation of the record bytes or a
// mismatching key yields ErrAuthenticationFailed.
func (e *Engine) Open(record, aad []byte) ([]byte, error) {
	if len(record) < recordOverhead {
		return nil, ErrInvalidRecord
	}
	if record[0] != RecordVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, record[0])
	}

	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	nonce := record[1 : 1+NonceSize]
	ciphertext := record[1+NonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// gcm constructs the AEAD from the current key material. Fails with
// ErrKeyUnavailable after Wipe.
func (e *Engine) gcm() (cipher.AEAD, error) {
	key, err := e.material.keyCopy()
	if err != nil {
		return nil, err
	}
	defer SecureZero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// IsSealedRecord reports whether the bytes are structurally a sealed record:
// a recognized version byte followed by at least a nonce and tag. It does
// not authenticate the record.
func IsSealedRecord(data []byte) bool {
	return len(data) >= recordOverhead && data[0] == RecordVersion
}
