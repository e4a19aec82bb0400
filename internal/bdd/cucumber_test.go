package bdd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chirino/chat-service/internal/cmd/serve"
	"github.com/chirino/chat-service/internal/config"
	"github.com/chirino/chat-service/internal/testutil/cucumber"
	"github.com/chirino/chat-service/internal/testutil/testmongo"
	"github.com/chirino/chat-service/internal/testutil/testredis"
	"github.com/cucumber/godog"
	"github.com/stretchr/testify/require"
)

func TestFeatures(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	mongoURL := testmongo.StartMongo(t)
	redisURL := testredis.StartRedis(t)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = "mongo"
	cfg.DBURL = mongoURL
	cfg.DBName = "chat_bdd"
	cfg.CacheType = "redis"
	cfg.RedisURL = redisURL
	cfg.SendRateLimit = 0
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false

	runFeatures(t, &cfg, filepath.Join("testdata", "features"))
}

// runFeatures starts a server for cfg and runs every feature file in dir
// against it as its own subtest.
func runFeatures(t *testing.T, cfg *config.Config, dir string) {
	t.Helper()

	ctx := config.WithContext(context.Background(), cfg)
	srv, err := serve.StartServer(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	apiURL := fmt.Sprintf("http://localhost:%d", srv.Running.Port)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Skipf("Feature files directory not found: %s", dir)
	}
	featureFiles, err := filepath.Glob(filepath.Join(dir, "*.feature"))
	require.NoError(t, err)
	require.NotEmpty(t, featureFiles, "No feature files found in %s", dir)

	// Scenarios share one server and one presence registry.
	opts := cucumber.DefaultOptions()
	opts.Concurrency = 1
	for _, arg := range os.Args[1:] {
		if arg == "-test.v=true" || arg == "-test.v" || arg == "-v" {
			opts.Format = "pretty"
		}
	}

	for _, featurePath := range featureFiles {
		name := strings.TrimSuffix(filepath.Base(featurePath), ".feature")
		t.Run(name, func(t *testing.T) {
			o := opts
			o.TestingT = t
			o.Paths = []string{featurePath}
			defer cucumber.ApplyReportOptions(&o, t.Name())()

			suite := cucumber.NewTestSuite()
			suite.APIURL = apiURL
			suite.TestingT = t
			suite.Context = cfg
			suite.DB = &MongoTestDB{DBURL: cfg.DBURL, DBName: cfg.DBName}

			status := godog.TestSuite{
				Name:                name,
				Options:             &o,
				ScenarioInitializer: suite.InitializeScenario,
			}.Run()
			if status != 0 {
				t.Fail()
			}
		})
	}
}
