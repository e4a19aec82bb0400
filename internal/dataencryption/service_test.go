package dataencryption_test

import (
	"context"
	"testing"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/dataencryption"
	_ "github.com/chirino/chat-service/internal/plugin/encrypt/dek"
	_ "github.com/chirino/chat-service/internal/plugin/encrypt/plain"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newService(t *testing.T, cfg config.Config) *dataencryption.Service {
	t.Helper()
	svc, err := dataencryption.New(context.Background(), &cfg)
	require.NoError(t, err)
	return svc
}

func TestServiceDefaultsToPlain(t *testing.T) {
	svc := newService(t, config.Config{})
	require.False(t, svc.IsPrimaryReal())

	ct, err := svc.Encrypt([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(ct))
}

func TestServiceReadsTextWrittenBeforeEncryption(t *testing.T) {
	svc := newService(t, config.Config{EncryptionKey: testKey})
	require.True(t, svc.IsPrimaryReal())
	require.Equal(t, "dek", svc.PrimaryID())

	ct, err := svc.Encrypt([]byte("secret"))
	require.NoError(t, err)
	got, err := svc.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "secret", string(got))

	legacy, err := svc.Decrypt([]byte("written in the clear"))
	require.NoError(t, err)
	require.Equal(t, "written in the clear", string(legacy))

	collision, err := svc.Decrypt([]byte("CSEH but not a header"))
	require.NoError(t, err)
	require.Equal(t, "CSEH but not a header", string(collision))
}

func TestServicePlainRoundTripsTextThatLooksLikeAnEnvelope(t *testing.T) {
	svc := newService(t, config.Config{})
	foreign, err := dataencryption.Seal("rot13", nil, []byte("payload"))
	require.NoError(t, err)

	for _, text := range []string{"CSEH\x05\x00\x00\x00\x00 hello", string(foreign)} {
		ct, err := svc.Encrypt([]byte(text))
		require.NoError(t, err)
		require.True(t, dataencryption.HasMagic(ct))

		got, err := svc.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, text, string(got))
	}
}

func TestServiceFallsBackToPlainForUnconfiguredProvider(t *testing.T) {
	svc := newService(t, config.Config{EncryptionKey: testKey})
	stored := []byte("CSEH\x05\x00\x00\x00\x00 hello")

	got, err := svc.Decrypt(stored)
	require.NoError(t, err)
	require.Equal(t, string(stored), string(got))
}

func TestServiceWithoutPlainRejectsBareText(t *testing.T) {
	svc := newService(t, config.Config{EncryptionKey: testKey, EncryptionProviders: "dek"})
	_, err := svc.Decrypt([]byte("written in the clear"))
	require.Error(t, err)
}

func TestServiceRejectsUnknownProvider(t *testing.T) {
	_, err := dataencryption.New(context.Background(), &config.Config{EncryptionProviders: "rot13"})
	require.ErrorContains(t, err, "unknown encryption provider")
}

func TestContextRoundTrip(t *testing.T) {
	require.Nil(t, dataencryption.FromContext(context.Background()))
	svc := newService(t, config.Config{})
	ctx := dataencryption.WithContext(context.Background(), svc)
	require.Same(t, svc, dataencryption.FromContext(ctx))
}
