package dataencryption_test

import (
	"bytes"
	"testing"

	"github.com/chirino/chat-service/internal/dataencryption"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	headers := []dataencryption.Header{
		{Version: 1, ProviderID: "dek", Nonce: make([]byte, 12)},
		{Version: 1, ProviderID: "vault", Nonce: make([]byte, 12)},
		{Version: 1, ProviderID: "kms", Nonce: bytes.Repeat([]byte{0xAB}, 12)},
	}
	for _, h := range headers {
		var buf bytes.Buffer
		require.NoError(t, dataencryption.WriteHeader(&buf, h))
		buf.WriteString("tail")

		got, hasMagic, err := dataencryption.ReadHeader(&buf)
		require.NoError(t, err)
		require.True(t, hasMagic)
		require.Equal(t, h, *got)
		require.Equal(t, "tail", buf.String())
	}
}

func TestHasMagic(t *testing.T) {
	sealed, err := dataencryption.Seal("dek", make([]byte, 12), []byte("payload"))
	require.NoError(t, err)

	require.True(t, dataencryption.HasMagic(sealed))
	require.False(t, dataencryption.HasMagic([]byte("not enveloped")))
	require.False(t, dataencryption.HasMagic(nil))
	require.False(t, dataencryption.HasMagic([]byte("CS")))
}

func TestOpenSplitsPayload(t *testing.T) {
	sealed, err := dataencryption.Seal("kms", []byte{1, 2, 3}, []byte("ciphertext"))
	require.NoError(t, err)

	h, payload, err := dataencryption.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "kms", h.ProviderID)
	require.Equal(t, []byte{1, 2, 3}, h.Nonce)
	require.Equal(t, "ciphertext", string(payload))
}

func TestReadHeaderNoMagic(t *testing.T) {
	h, hasMagic, err := dataencryption.ReadHeader(bytes.NewReader([]byte("plaintext data")))
	require.NoError(t, err)
	require.False(t, hasMagic)
	require.Nil(t, h)
}

func TestReadHeaderRejectsOversizedHeader(t *testing.T) {
	data := []byte{'C', 'S', 'E', 'H', 0xff, 0xff, 0xff, 0x7f}
	_, hasMagic, err := dataencryption.ReadHeader(bytes.NewReader(data))
	require.True(t, hasMagic)
	require.ErrorContains(t, err, "out of range")
}
