package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMaterial(t *testing.T) *KeyMaterial {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	m, err := NewKeyMaterial(key)
	require.NoError(t, err)
	return m
}

func seal(t *testing.T, e *Engine, m *KeyMaterial, plaintext, aad []byte) []byte {
	t.Helper()
	nonce, err := m.NextNonce()
	require.NoError(t, err)
	record, err := e.Seal(plaintext, nonce, aad)
	require.NoError(t, err)
	return record
}

func TestEngine_SealOpen_RoundTrip(t *testing.T) {
	m := newTestMaterial(t)
	e := NewEngine(m)

	tests := []struct {
		name      string
		plaintext []byte
		aad       []byte
	}{
		{"empty plaintext", nil, []byte("key")},
		{"short", []byte("hello"), []byte("key")},
		{"empty aad", []byte("data"), nil},
		{"binary", []byte{0x00, 0xFF, 0x10}, []byte{0x01}},
		{"large", bytes.Repeat([]byte("block"), 100000), []byte("big")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := seal(t, e, m, tt.plaintext, tt.aad)

			opened, err := e.Open(record, tt.aad)
			require.NoError(t, err)
			if len(tt.plaintext) == 0 {
				assert.Empty(t, opened)
			} else {
				assert.Equal(t, tt.plaintext, opened)
			}
		})
	}
}

func TestEngine_RecordLayout(t *testing.T) {
	m := newTestMaterial(t)
	e := NewEngine(m)

	plaintext := []byte("payload")
	record := seal(t, e, m, plaintext, nil)

	assert.Equal(t, byte(RecordVersion), record[0])
	assert.Len(t, record, 1+NonceSize+len(plaintext)+TagSize)
}

func TestEngine_TamperDetection_EveryByte(t *testing.T) {
	m := newTestMaterial(t)
	e := NewEngine(m)

	aad := []byte("storage-key")
	record := seal(t, e, m, []byte("sensitive row data"), aad)

	// Flipping any single byte beyond the version prefix must fail
	// authentication. The version byte itself fails as unsupported.
	for i := 1; i < len(record); i++ {
		tampered := append([]byte(nil), record...)
		tampered[i] ^= 0x01

		_, err := e.Open(tampered, aad)
		assert.ErrorIs(t, err, ErrAuthenticationFailed, "byte %d", i)
	}
}

func TestEngine_TamperedVersion(t *testing.T) {
	m := newTestMaterial(t)
	e := NewEngine(m)

	record := seal(t, e, m, []byte("data"), nil)
	record[0] = 42

	_, err := e.Open(record, nil)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestEngine_AADMismatch(t *testing.T) {
	m := newTestMaterial(t)
	e := NewEngine(m)

	record := seal(t, e, m, []byte("row"), []byte("key-a"))

	// A record copied under a different key must not open.
	_, err := e.Open(record, []byte("key-b"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestEngine_CrossKeyIsolation(t *testing.T) {
	m1 := newTestMaterial(t)
	m2 := newTestMaterial(t)
	e1 := NewEngine(m1)
	e2 := NewEngine(m2)

	record := seal(t, e1, m1, []byte("secret"), []byte("k"))

	_, err := e2.Open(record, []byte("k"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestEngine_DistinctCiphertexts(t *testing.T) {
	m := newTestMaterial(t)
	e := NewEngine(m)

	first := seal(t, e, m, []byte("same content"), []byte("k"))
	second := seal(t, e, m, []byte("same content"), []byte("k"))

	assert.NotEqual(t, first, second, "fresh nonces must yield distinct records for identical plaintext")
}

func TestEngine_TooShortRecord(t *testing.T) {
	m := newTestMaterial(t)
	e := NewEngine(m)

	_, err := e.Open([]byte{RecordVersion, 1, 2, 3}, nil)
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = e.Open(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestEngine_AfterWipe(t *testing.T) {
	m := newTestMaterial(t)
	e := NewEngine(m)

	record := seal(t, e, m, []byte("data"), nil)
	m.Wipe()

	_, err := e.Open(record, nil)
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	var nonce Nonce
	_, err = e.Seal([]byte("more"), nonce, nil)
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestIsSealedRecord(t *testing.T) {
	m := newTestMaterial(t)
	e := NewEngine(m)

	record := seal(t, e, m, []byte("data"), nil)
	assert.True(t, IsSealedRecord(record))

	assert.False(t, IsSealedRecord(nil))
	assert.False(t, IsSealedRecord([]byte{RecordVersion}))
	assert.False(t, IsSealedRecord(bytes.Repeat([]byte{99}, 64)))
}
