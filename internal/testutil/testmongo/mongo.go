// Package testmongo starts the MongoDB chat store used by store and BDD tests.
package testmongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultImage can be replaced with CHAT_SERVICE_TEST_MONGO_IMAGE.
const DefaultImage = "mongo:7"

func image() string {
	if v := os.Getenv("CHAT_SERVICE_TEST_MONGO_IMAGE"); v != "" {
		return v
	}
	return DefaultImage
}

// StartMongo starts a disposable MongoDB container and returns its connection URI.
func StartMongo(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	container, err := mongodb.Run(ctx, image())
	if err != nil {
		tb.Fatalf("start mongodb chat store: %v", err)
	}

	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			tb.Errorf("terminate mongodb chat store: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("build mongodb connection string: %v", err)
	}

	return uri
}

// Connect opens a client to uri that is disconnected when the test ends.
func Connect(tb testing.TB, uri string) *mongo.Client {
	tb.Helper()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		tb.Fatalf("connect to mongodb: %v", err)
	}
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	})
	return client
}
