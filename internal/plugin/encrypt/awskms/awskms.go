// Package awskms registers the "kms" encryption provider backed by AWS KMS.
// KMS only wraps and unwraps the DEKs kept by dekstore.
package awskms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/plugin/encrypt/dek"
	"github.com/chirino/chat-service/internal/plugin/encrypt/dekstore"
	"github.com/chirino/chat-service/internal/registry/encrypt"
)

func init() {
	encrypt.Register(encrypt.Plugin{Name: "kms", Loader: newLoader()})
}

func newLoader() func(ctx context.Context, cfg *config.Config) (encrypt.Provider, error) {
	return func(ctx context.Context, cfg *config.Config) (encrypt.Provider, error) {
		if cfg.EncryptionKMSKeyID == "" {
			return nil, fmt.Errorf("kms provider: CHAT_SERVICE_ENCRYPTION_KMS_KEY_ID is required")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("kms provider: loading AWS config: %w", err)
		}
		return newProvider(kms.NewFromConfig(awsCfg), cfg), nil
	}
}

// keyAPI is the subset of the KMS client used to wrap DEKs.
type keyAPI interface {
	Encrypt(ctx context.Context, in *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, in *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

func newProvider(client keyAPI, cfg *config.Config) *dek.Provider {
	w := &wrapper{client: client, keyID: cfg.EncryptionKMSKeyID}
	ring := &dekstore.Keyring{
		Provider: "kms",
		Open:     func(ctx context.Context) (dekstore.Store, error) { return dekstore.New(ctx, cfg) },
		Wrap:     w.encrypt,
		Unwrap:   w.decrypt,
	}
	return &dek.Provider{Name: "kms", Keys: ring.Keys, Refresh: ring.Refresh}
}

type wrapper struct {
	client keyAPI
	keyID  string
}

func (w *wrapper) encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := w.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(w.keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("kms: Encrypt: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (w *wrapper) decrypt(ctx context.Context, wrapped []byte) ([]byte, error) {
	out, err := w.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: wrapped,
		KeyId:          aws.String(w.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("kms: Decrypt: %w", err)
	}
	return out.Plaintext, nil
}
