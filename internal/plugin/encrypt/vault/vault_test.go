package vault

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chirino/chat-service/internal/config"
	vaultapi "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/require"
)

// fakeTransit answers transit/encrypt and transit/decrypt for key "chat".
func fakeTransit(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		data := map[string]string{}
		switch r.URL.Path {
		case "/v1/transit/encrypt/chat":
			data["ciphertext"] = "vault:v1:" + body["plaintext"]
		case "/v1/transit/decrypt/chat":
			data["plaintext"] = strings.TrimPrefix(body["ciphertext"], "vault:v1:")
		default:
			http.Error(w, `{"errors":["no handler"]}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVaultProviderRoundTrip(t *testing.T) {
	srv := fakeTransit(t)
	vcfg := vaultapi.DefaultConfig()
	vcfg.Address = srv.URL
	client, err := vaultapi.NewClient(vcfg)
	require.NoError(t, err)
	client.SetToken("test")

	cfg := &config.Config{DatastoreType: "memory", EncryptionVaultTransitKey: "chat"}
	p := newProvider(&transit{logical: client.Logical(), key: "chat"}, cfg)

	ct, err := p.Encrypt([]byte("launch codes"))
	require.NoError(t, err)
	require.NotContains(t, string(ct), "launch codes")

	got, err := p.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "launch codes", string(got))
}

func TestVaultProviderUnknownKey(t *testing.T) {
	srv := fakeTransit(t)
	vcfg := vaultapi.DefaultConfig()
	vcfg.Address = srv.URL
	client, err := vaultapi.NewClient(vcfg)
	require.NoError(t, err)
	client.SetToken("test")

	cfg := &config.Config{DatastoreType: "memory", EncryptionVaultTransitKey: "other"}
	p := newProvider(&transit{logical: client.Logical(), key: "other"}, cfg)
	_, err = p.Encrypt([]byte("x"))
	require.Error(t, err)
}
