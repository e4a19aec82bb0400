// Package vault registers the "vault" encryption provider backed by HashiCorp
// Vault Transit. Vault only wraps and unwraps the DEKs kept by dekstore.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/plugin/encrypt/dek"
	"github.com/chirino/chat-service/internal/plugin/encrypt/dekstore"
	"github.com/chirino/chat-service/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: "vault",
		Loader: func(_ context.Context, cfg *config.Config) (encrypt.Provider, error) {
			if cfg.EncryptionVaultTransitKey == "" {
				return nil, fmt.Errorf("vault provider: CHAT_SERVICE_ENCRYPTION_VAULT_TRANSIT_KEY is required")
			}
			// VAULT_ADDR and VAULT_TOKEN are read by the client itself.
			client, err := vaultapi.NewClient(vaultapi.DefaultConfig())
			if err != nil {
				return nil, fmt.Errorf("vault provider: creating client: %w", err)
			}
			return newProvider(&transit{logical: client.Logical(), key: cfg.EncryptionVaultTransitKey}, cfg), nil
		},
	})
}

func newProvider(t *transit, cfg *config.Config) *dek.Provider {
	ring := &dekstore.Keyring{
		Provider: "vault",
		Open:     func(ctx context.Context) (dekstore.Store, error) { return dekstore.New(ctx, cfg) },
		Wrap:     t.encrypt,
		Unwrap:   t.decrypt,
	}
	return &dek.Provider{Name: "vault", Keys: ring.Keys, Refresh: ring.Refresh}
}

type transit struct {
	logical *vaultapi.Logical
	key     string
}

// encrypt wraps plaintext via transit/encrypt (base64 input).
func (t *transit) encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	secret, err := t.logical.WriteWithContext(ctx, "transit/encrypt/"+t.key, map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: transit/encrypt: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("vault: transit/encrypt: empty response")
	}
	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault: transit/encrypt: missing ciphertext in response")
	}
	return []byte(ciphertext), nil
}

// decrypt unwraps a transit ciphertext ("vault:v1:...") back to plaintext.
func (t *transit) decrypt(ctx context.Context, wrapped []byte) ([]byte, error) {
	secret, err := t.logical.WriteWithContext(ctx, "transit/decrypt/"+t.key, map[string]any{
		"ciphertext": string(wrapped),
	})
	if err != nil {
		return nil, fmt.Errorf("vault: transit/decrypt: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("vault: transit/decrypt: empty response")
	}
	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault: transit/decrypt: missing plaintext in response")
	}
	plain, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("vault: transit/decrypt: decoding plaintext: %w", err)
	}
	return plain, nil
}
