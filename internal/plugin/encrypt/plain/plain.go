// Package plain registers the "plain" no-op encryption provider.
// Message text is stored unchanged and no envelope header is written, except
// for text that itself begins with the envelope magic: that is sealed under a
// "plain" header so it cannot be mistaken for ciphertext on read.
package plain

import (
	"context"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/dataencryption"
	"github.com/chirino/chat-service/internal/registry/encrypt"
)

// ProviderID is the envelope provider id written by this provider.
const ProviderID = "plain"

func init() {
	encrypt.Register(encrypt.Plugin{
		Name: ProviderID,
		Loader: func(_ context.Context, _ *config.Config) (encrypt.Provider, error) {
			return plainProvider{}, nil
		},
	})
}

type plainProvider struct{}

func (plainProvider) ID() string { return ProviderID }

func (plainProvider) Encrypt(plaintext []byte) ([]byte, error) {
	if !dataencryption.HasMagic(plaintext) {
		return plaintext, nil
	}
	return dataencryption.Seal(ProviderID, nil, plaintext)
}

func (plainProvider) Decrypt(ciphertext []byte) ([]byte, error) {
	if !dataencryption.HasMagic(ciphertext) {
		return ciphertext, nil
	}
	h, body, err := dataencryption.Open(ciphertext)
	if err != nil || h.ProviderID != ProviderID {
		return ciphertext, nil
	}
	return body, nil
}
