package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEncryptionKey_HexAndBase64(t *testing.T) {
	hexKey := "00112233445566778899aabbccddeeff"
	key, err := DecodeEncryptionKey(hexKey)
	require.NoError(t, err)
	require.Len(t, key, 16)

	raw := []byte("0123456789abcdef0123456789abcdef")
	b64 := base64.StdEncoding.EncodeToString(raw)
	key, err = DecodeEncryptionKey(b64)
	require.NoError(t, err)
	require.Equal(t, raw, key)
}

func TestEncryptionKeys_PrimaryFirst(t *testing.T) {
	cfg := Config{EncryptionKey: "00112233445566778899aabbccddeeff, ffeeddccbbaa99887766554433221100"}
	keys, err := cfg.EncryptionKeys()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, byte(0x00), keys[0][0])
	require.Equal(t, byte(0xff), keys[1][0])

	empty := Config{}
	keys, err = empty.EncryptionKeys()
	require.NoError(t, err)
	require.Nil(t, keys)
}

func TestEncryptionProviderNames(t *testing.T) {
	require.Equal(t, []string{"plain"}, (&Config{}).EncryptionProviderNames())
	require.Equal(t, []string{"dek", "plain"}, (&Config{EncryptionKey: "00112233445566778899aabbccddeeff"}).EncryptionProviderNames())
	require.Equal(t, []string{"vault", "dek"}, (&Config{EncryptionProviders: " vault, ,dek "}).EncryptionProviderNames())
}
