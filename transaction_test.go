package sealkv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealkv"
	"sealkv/codec"
	"sealkv/memkv"
)

// plainBackend hides memkv's Transactor and BatchWriter methods so the
// adapter sees a bare Backend.
type plainBackend struct {
	inner sealkv.Backend
}

func (b *plainBackend) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	return b.inner.Get(ctx, key)
}

func (b *plainBackend) Put(ctx context.Context, key, value []byte) error {
	return b.inner.Put(ctx, key, value)
}

func (b *plainBackend) Delete(ctx context.Context, key []byte) error {
	return b.inner.Delete(ctx, key)
}

func (b *plainBackend) Scan(ctx context.Context, start, end []byte) (sealkv.Iterator, error) {
	return b.inner.Scan(ctx, start, end)
}

// faultBackend fails every write with a fixed error.
type faultBackend struct {
	plainBackend
	err error
}

func (b *faultBackend) Put(ctx context.Context, key, value []byte) error { return b.err }

func TestTransaction_Commit(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Begin(ctx))
	require.NoError(t, store.Put(ctx, []byte("a"), codec.Row{codec.Int(1)}))
	require.NoError(t, store.Put(ctx, []byte("b"), codec.Row{codec.Int(2)}))
	require.NoError(t, store.Commit(ctx))

	assert.Equal(t, 2, backend.Len())
	row, found, err := store.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), row[0].AsInt())
}

func TestTransaction_Rollback(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, []byte("keep"), codec.Row{codec.Int(0)}))

	require.NoError(t, store.Begin(ctx))
	require.NoError(t, store.Put(ctx, []byte("discard"), codec.Row{codec.Int(1)}))
	require.NoError(t, store.Delete(ctx, []byte("keep")))
	require.NoError(t, store.Rollback(ctx))

	assert.Equal(t, 1, backend.Len())
	_, found, err := store.Get(ctx, []byte("discard"))
	require.NoError(t, err)
	assert.False(t, found)

	row, found, err := store.Get(ctx, []byte("keep"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(0), row[0].AsInt())
}

func TestTransaction_Unsupported(t *testing.T) {
	store, err := sealkv.New(&plainBackend{inner: memkv.New()}, newMaterial(t))
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, store.Begin(ctx), sealkv.ErrTransactionsUnsupported)
	assert.ErrorIs(t, store.Commit(ctx), sealkv.ErrTransactionsUnsupported)
	assert.ErrorIs(t, store.Rollback(ctx), sealkv.ErrTransactionsUnsupported)

	// Plain reads and writes still work without transaction support.
	require.NoError(t, store.Put(ctx, []byte("k"), codec.Row{codec.Int(1)}))
	_, found, err := store.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestTransaction_StateErrors(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Commit(ctx), sealkv.ErrNotInTransaction)
	assert.ErrorIs(t, store.Rollback(ctx), sealkv.ErrNotInTransaction)

	require.NoError(t, store.Begin(ctx))
	assert.ErrorIs(t, store.Begin(ctx), sealkv.ErrTransactionActive)
	require.NoError(t, store.Rollback(ctx))

	// The flag is released after rollback; a new transaction may start.
	require.NoError(t, store.Begin(ctx))
	require.NoError(t, store.Commit(ctx))
}

func TestTransaction_SealFailureAborts(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Begin(ctx))
	require.NoError(t, store.Put(ctx, []byte("a"), codec.Row{codec.Int(1)}))
	require.NoError(t, store.Put(ctx, []byte("b"), codec.Row{codec.Int(2)}))

	// Wiping the key material makes the next seal fail mid-transaction.
	require.NoError(t, store.Close())

	err := store.Put(ctx, []byte("c"), codec.Row{codec.Int(3)})
	assert.ErrorIs(t, err, sealkv.ErrKeyUnavailable)

	// The partial transaction was rolled back, not committed.
	assert.Equal(t, 0, backend.Len())
	assert.ErrorIs(t, store.Commit(ctx), sealkv.ErrNotInTransaction)
}

func TestTransaction_BackendErrorPassesThrough(t *testing.T) {
	backendErr := errors.New("disk full")
	backend := &faultBackend{
		plainBackend: plainBackend{inner: memkv.New()},
		err:          backendErr,
	}
	store, err := sealkv.New(backend, newMaterial(t))
	require.NoError(t, err)

	// Backend write failures are wrapped and surfaced untouched; the
	// adapter does not retry or swallow them.
	err = store.Put(context.Background(), []byte("k"), codec.Row{codec.Int(1)})
	assert.ErrorIs(t, err, backendErr)
}
