package dekstore

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
)

// Keyring loads a provider's wrapped DEKs once, unwraps them with a key
// encryption key held by an external service, and caches the plaintext keys.
// The external service is only contacted on load and refresh, never per message.
type Keyring struct {
	Provider string
	Open     func(ctx context.Context) (Store, error)
	Wrap     func(ctx context.Context, plaintext []byte) ([]byte, error)
	Unwrap   func(ctx context.Context, wrapped []byte) ([]byte, error)

	once    sync.Once
	mu      sync.RWMutex
	keys    [][]byte
	loadErr error
}

// Keys returns the unwrapped DEKs, primary first, loading them on first use.
func (k *Keyring) Keys() ([][]byte, error) {
	k.once.Do(func() {
		keys, err := k.load(context.Background(), true)
		k.mu.Lock()
		k.keys, k.loadErr = keys, err
		k.mu.Unlock()
	})
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.loadErr != nil {
		return nil, k.loadErr
	}
	return append([][]byte(nil), k.keys...), nil
}

// Refresh re-reads the record so a DEK rotated by another instance becomes usable.
func (k *Keyring) Refresh() error {
	keys, err := k.load(context.Background(), false)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	k.mu.Lock()
	k.keys, k.loadErr = keys, nil
	k.mu.Unlock()
	return nil
}

// Rotate generates a new primary DEK and keeps the previous ones for decryption.
func (k *Keyring) Rotate(ctx context.Context) error {
	store, err := k.Open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Load(ctx, k.Provider)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%s: no DEK record to rotate", k.Provider)
	}
	wrapped, err := k.newWrappedDEK(ctx)
	if err != nil {
		return err
	}
	ok, err := store.Update(ctx, k.Provider, append([][]byte{wrapped}, rec.WrappedDEKs...), rec.Revision)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: DEK record changed concurrently", k.Provider)
	}
	return k.Refresh()
}

func (k *Keyring) load(ctx context.Context, bootstrapIfEmpty bool) ([][]byte, error) {
	store, err := k.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rec, err := store.Load(ctx, k.Provider)
	if err != nil {
		return nil, err
	}
	if rec == nil && bootstrapIfEmpty {
		wrapped, err := k.newWrappedDEK(ctx)
		if err != nil {
			return nil, err
		}
		if err := store.Bootstrap(ctx, k.Provider, wrapped); err != nil {
			return nil, err
		}
		if rec, err = store.Load(ctx, k.Provider); err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("%s: no DEK record found after bootstrap", k.Provider)
		}
	}
	if rec == nil {
		return nil, nil
	}

	keys := make([][]byte, 0, len(rec.WrappedDEKs))
	for _, w := range rec.WrappedDEKs {
		plain, err := k.Unwrap(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("%s: unwrap DEK: %w", k.Provider, err)
		}
		keys = append(keys, plain)
	}
	return keys, nil
}

func (k *Keyring) newWrappedDEK(ctx context.Context) ([]byte, error) {
	plain := make([]byte, 32)
	if _, err := rand.Read(plain); err != nil {
		return nil, fmt.Errorf("%s: generating DEK: %w", k.Provider, err)
	}
	wrapped, err := k.Wrap(ctx, plain)
	if err != nil {
		return nil, fmt.Errorf("%s: wrapping DEK: %w", k.Provider, err)
	}
	return wrapped, nil
}
