package bdd

import (
	"path/filepath"
	"testing"

	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/testutil/testinfinispan"
	"github.com/chirino/chat-service/internal/testutil/testmongo"
)

// testEncryptionKey is a 64-hex-char (32-byte) AES-256 key for testing.
const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// TestFeaturesEncrypted runs the at-rest encryption features with the
// Infinispan user cache in front of the store.
func TestFeaturesEncrypted(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	mongoURL := testmongo.StartMongo(t)
	infinispan := testinfinispan.StartInfinispan(t)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = "mongo"
	cfg.DBURL = mongoURL
	cfg.DBName = "chat_bdd_encrypted"
	cfg.CacheType = "infinispan"
	cfg.InfinispanHost = infinispan.Host
	cfg.InfinispanUsername = infinispan.Username
	cfg.InfinispanPassword = infinispan.Password
	cfg.EncryptionKey = testEncryptionKey
	cfg.SendRateLimit = 0
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false

	runFeatures(t, &cfg, filepath.Join("testdata", "features-encrypted"))
}
