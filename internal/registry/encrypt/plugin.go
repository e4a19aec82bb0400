package encrypt

import (
	"context"
	"fmt"

	"github.com/chirino/chat-service/internal/config"
)

// Provider encrypts and decrypts message text at rest.
type Provider interface {
	// ID is the name written into the envelope header so Decrypt can be routed
	// back to the provider that produced the ciphertext.
	ID() string

	// Encrypt returns enveloped ciphertext (or the input for the plain provider).
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt accepts ciphertext produced by Encrypt.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Plugin bundles a provider name with its loader function.
type Plugin struct {
	Name   string
	Loader func(ctx context.Context, cfg *config.Config) (Provider, error)
}

var plugins []Plugin

// Register adds an encryption provider plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered provider names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the Plugin for the given name.
func Select(name string) (Plugin, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p, nil
		}
	}
	return Plugin{}, fmt.Errorf("unknown encryption provider %q; registered: %v", name, Names())
}
