// Package dek registers the "dek" AES-GCM encryption provider keyed by
// CHAT_SERVICE_ENCRYPTION_KEY.
package dek

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/dataencryption"
	"github.com/chirino/chat-service/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "dek",
		Loader: func(_ context.Context, cfg *config.Config) (encrypt.Provider, error) {
			keys, err := cfg.EncryptionKeys()
			if err != nil {
				return nil, fmt.Errorf("dek provider: %w", err)
			}
			if len(keys) == 0 {
				return nil, fmt.Errorf("dek provider: CHAT_SERVICE_ENCRYPTION_KEY is required")
			}
			return &Provider{Name: "dek", Keys: func() ([][]byte, error) { return keys, nil }}, nil
		},
	})
}

// Provider seals text with the first key returned by Keys and opens it with
// any of them. Key-encryption-key backed providers reuse it with their own
// Name and a Keys func over their unwrapped DEKs.
type Provider struct {
	Name string
	Keys func() ([][]byte, error)
	// Refresh, when set, is called once after every key failed to open a
	// payload; a nil error triggers one retry with the refreshed keys.
	Refresh func() error
}

func (p *Provider) ID() string { return p.Name }

// Encrypt seals plaintext with the primary key and wraps it in an envelope.
func (p *Provider) Encrypt(plaintext []byte) ([]byte, error) {
	keys, err := p.Keys()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: no keys available", p.Name)
	}
	iv, ciphertext, err := AESGCMSeal(keys[0], plaintext)
	if err != nil {
		return nil, err
	}
	return dataencryption.Seal(p.Name, iv, ciphertext)
}

// Decrypt opens an envelope produced by Encrypt.
func (p *Provider) Decrypt(ciphertext []byte) ([]byte, error) {
	if !dataencryption.HasMagic(ciphertext) {
		return nil, fmt.Errorf("%s: expected envelope header", p.Name)
	}
	h, payload, err := dataencryption.Open(ciphertext)
	if err != nil {
		return nil, err
	}
	keys, err := p.Keys()
	if err != nil {
		return nil, err
	}
	plain, err := tryKeys(h.Nonce, payload, keys)
	if err == nil || p.Refresh == nil {
		return plain, err
	}
	if refreshErr := p.Refresh(); refreshErr != nil {
		return nil, fmt.Errorf("%s: decryption failed and key refresh also failed: %w", p.Name, refreshErr)
	}
	if keys, err = p.Keys(); err != nil {
		return nil, err
	}
	return tryKeys(h.Nonce, payload, keys)
}

func tryKeys(iv, payload []byte, keys [][]byte) ([]byte, error) {
	lastErr := fmt.Errorf("no keys available")
	for _, key := range keys {
		plain, err := AESGCMOpen(key, iv, payload)
		if err == nil {
			return plain, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("decryption failed with all keys: %w", lastErr)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("dek: AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("dek: GCM: %w", err)
	}
	return gcm, nil
}

// AESGCMSeal encrypts plaintext with key and a random nonce.
func AESGCMSeal(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	iv = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("dek: generating nonce: %w", err)
	}
	return iv, gcm.Seal(nil, iv, plaintext, nil), nil
}

// AESGCMOpen decrypts ciphertext (with appended GCM tag) using key and iv.
func AESGCMOpen(key, iv, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("dek: AES-GCM open: %w", err)
	}
	return plain, nil
}
