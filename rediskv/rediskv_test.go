package rediskv

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealkv"
	"sealkv/codec"
	"sealkv/crypto"
)

func newTestBackend(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, opts...), mr
}

func TestStore_GetPutDelete(t *testing.T) {
	s, _ := newTestBackend(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v1")))
	v, found, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v2")))
	v, _, err = s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, s.Delete(ctx, []byte("k")))
	_, found, err = s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_KeyPrefix(t *testing.T) {
	s, mr := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v")))

	// The entry lives under the namespaced Redis key, not the bare one.
	assert.True(t, mr.Exists(DefaultPrefix+"k"))
	assert.False(t, mr.Exists("k"))
}

func TestStore_CustomPrefix(t *testing.T) {
	s, mr := newTestBackend(t, WithPrefix("custom:"))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []byte("k"), []byte("v")))
	assert.True(t, mr.Exists("custom:k"))

	v, found, err := s.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), v)
}

func TestStore_ScanOrdering(t *testing.T) {
	s, mr := newTestBackend(t)
	ctx := context.Background()

	for _, k := range []string{"c", "a", "e", "b", "d"} {
		require.NoError(t, s.Put(ctx, []byte(k), []byte("v-"+k)))
	}
	// A foreign key outside the namespace must not leak into scans.
	mr.Set("unrelated", "x")

	tests := []struct {
		name       string
		start, end []byte
		want       []string
	}{
		{"full", nil, nil, []string{"a", "b", "c", "d", "e"}},
		{"bounded", []byte("b"), []byte("d"), []string{"b", "c"}},
		{"open start", nil, []byte("c"), []string{"a", "b"}},
		{"open end", []byte("d"), nil, []string{"d", "e"}},
		{"empty", []byte("x"), []byte("z"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := s.Scan(ctx, tt.start, tt.end)
			require.NoError(t, err)
			defer it.Close()

			var got []string
			for it.Next() {
				got = append(got, string(it.Key()))
				assert.Equal(t, "v-"+string(it.Key()), string(it.Value()))
			}
			require.NoError(t, it.Err())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_Batch(t *testing.T) {
	s, _ := newTestBackend(t)
	ctx := context.Background()

	pairs := []sealkv.KV{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	require.NoError(t, s.BatchPut(ctx, pairs))

	require.NoError(t, s.BatchDelete(ctx, [][]byte{[]byte("a"), []byte("c")}))

	_, found, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err := s.Get(ctx, []byte("b"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("2"), v)
}

func TestStore_TransactionCommit(t *testing.T) {
	s, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.Put(ctx, []byte("a"), []byte("1")))
	require.NoError(t, s.Put(ctx, []byte("b"), []byte("2")))

	// Queued writes are not visible before Commit.
	_, found, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Commit(ctx))

	v, found, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("1"), v)
}

func TestStore_TransactionRollback(t *testing.T) {
	s, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []byte("keep"), []byte("0")))

	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.Put(ctx, []byte("new"), []byte("1")))
	require.NoError(t, s.Delete(ctx, []byte("keep")))
	require.NoError(t, s.Rollback(ctx))

	_, found, err := s.Get(ctx, []byte("new"))
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err := s.Get(ctx, []byte("keep"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("0"), v)
}

func TestStore_TransactionStateErrors(t *testing.T) {
	s, _ := newTestBackend(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Commit(ctx), ErrNotInTransaction)
	assert.ErrorIs(t, s.Rollback(ctx), ErrNotInTransaction)

	require.NoError(t, s.Begin(ctx))
	assert.ErrorIs(t, s.Begin(ctx), ErrTransactionActive)
	require.NoError(t, s.Rollback(ctx))
}

func TestStore_AdapterIntegration(t *testing.T) {
	// The Redis backend must satisfy the full adapter contract end to end.
	s, mr := newTestBackend(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	material, err := crypto.NewKeyMaterial(key)
	require.NoError(t, err)

	store, err := sealkv.New(s, material)
	require.NoError(t, err)
	ctx := context.Background()

	row := codec.Row{codec.Text("wonderland"), codec.Int(30)}
	require.NoError(t, store.Put(ctx, []byte("alice"), row))

	got, found, err := store.Get(ctx, []byte("alice"))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, row.Equal(got))

	// Redis sees only the sealed record.
	raw, err := mr.Get(DefaultPrefix + "alice")
	require.NoError(t, err)
	assert.NotContains(t, raw, "wonder")
}
