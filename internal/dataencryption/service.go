package dataencryption

import (
	"context"
	"fmt"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/registry/encrypt"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Service.
func WithContext(ctx context.Context, svc *Service) context.Context {
	return context.WithValue(ctx, contextKey{}, svc)
}

// FromContext retrieves the Service from the context. Returns nil if none was set.
func FromContext(ctx context.Context) *Service {
	svc, _ := ctx.Value(contextKey{}).(*Service)
	return svc
}

// Service orchestrates encryption providers. The primary provider is used for new
// encryptions; every configured provider is available for decryption, selected by
// the ProviderID in the envelope header.
type Service struct {
	primary encrypt.Provider
	byID    map[string]encrypt.Provider
}

// New constructs a Service from cfg.EncryptionProviderNames().
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	svc := &Service{byID: make(map[string]encrypt.Provider)}
	for _, name := range cfg.EncryptionProviderNames() {
		plugin, err := encrypt.Select(name)
		if err != nil {
			return nil, err
		}
		provider, err := plugin.Loader(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("encryption provider %q: %w", name, err)
		}
		svc.byID[provider.ID()] = provider
		if svc.primary == nil {
			svc.primary = provider
		}
	}
	if svc.primary == nil {
		return nil, fmt.Errorf("no encryption providers configured in CHAT_SERVICE_ENCRYPTION_KIND")
	}
	return svc, nil
}

// IsPrimaryReal returns true when the primary provider performs actual encryption.
func (s *Service) IsPrimaryReal() bool {
	return s.primary.ID() != "plain"
}

// PrimaryID names the provider used for new encryptions.
func (s *Service) PrimaryID() string {
	return s.primary.ID()
}

// Encrypt delegates to the primary provider.
func (s *Service) Encrypt(plaintext []byte) ([]byte, error) {
	return s.primary.Encrypt(plaintext)
}

// Decrypt routes to the provider named in the envelope header. When "plain" is
// configured, text without a header (written before encryption was enabled),
// text whose header does not parse and text naming an unconfigured provider are
// handed to it. Without "plain" those cases are errors unless the primary
// provider accepts them.
func (s *Service) Decrypt(ciphertext []byte) ([]byte, error) {
	plain := s.byID["plain"]

	if HasMagic(ciphertext) {
		h, _, err := Open(ciphertext)
		if err != nil {
			if plain != nil {
				return plain.Decrypt(ciphertext)
			}
			return nil, err
		}
		provider, ok := s.byID[h.ProviderID]
		if !ok {
			if plain != nil {
				return plain.Decrypt(ciphertext)
			}
			return nil, fmt.Errorf("dataencryption: unknown provider %q in envelope header", h.ProviderID)
		}
		return provider.Decrypt(ciphertext)
	}

	if plain != nil {
		return plain.Decrypt(ciphertext)
	}
	return s.primary.Decrypt(ciphertext)
}
