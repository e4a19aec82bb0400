package dekstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// xorKEK stands in for an external key service.
func xorKEK(_ context.Context, b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ 0x5a
	}
	return out, nil
}

func newKeyring(store Store) *Keyring {
	return &Keyring{
		Provider: "vault",
		Open:     func(context.Context) (Store, error) { return store, nil },
		Wrap:     xorKEK,
		Unwrap:   xorKEK,
	}
}

func TestKeyringBootstrapsOnce(t *testing.T) {
	store := NewMemory()
	keys, err := newKeyring(store).Keys()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Len(t, keys[0], 32)

	// A second instance sees the same DEK instead of minting its own.
	other, err := newKeyring(store).Keys()
	require.NoError(t, err)
	require.Equal(t, keys, other)

	rec, err := store.Load(context.Background(), "vault")
	require.NoError(t, err)
	require.False(t, bytes.Equal(rec.WrappedDEKs[0], keys[0]))
}

func TestKeyringRotateKeepsLegacyKeys(t *testing.T) {
	store := NewMemory()
	ring := newKeyring(store)
	before, err := ring.Keys()
	require.NoError(t, err)

	require.NoError(t, ring.Rotate(context.Background()))
	after, err := ring.Keys()
	require.NoError(t, err)
	require.Len(t, after, 2)
	require.Equal(t, before[0], after[1])

	// Another instance picks up the rotation on refresh.
	stale := newKeyring(store)
	require.NoError(t, stale.Refresh())
	refreshed, err := stale.Keys()
	require.NoError(t, err)
	require.Equal(t, after, refreshed)
}

func TestMemoryStoreOptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	require.NoError(t, store.Bootstrap(ctx, "kms", []byte("a")))
	require.NoError(t, store.Bootstrap(ctx, "kms", []byte("b")))

	rec, err := store.Load(ctx, "kms")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("a")}, rec.WrappedDEKs)

	ok, err := store.Update(ctx, "kms", [][]byte{[]byte("c"), []byte("a")}, rec.Revision)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Update(ctx, "kms", [][]byte{[]byte("d")}, rec.Revision)
	require.NoError(t, err)
	require.False(t, ok)
}
