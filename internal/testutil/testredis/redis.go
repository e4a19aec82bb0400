// Package testredis starts the Redis user-profile cache used by cache and BDD tests.
package testredis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultImage can be replaced with CHAT_SERVICE_TEST_REDIS_IMAGE.
const DefaultImage = "redis:7-alpine"

func image() string {
	if v := os.Getenv("CHAT_SERVICE_TEST_REDIS_IMAGE"); v != "" {
		return v
	}
	return DefaultImage
}

// StartRedis starts a disposable Redis container and returns a redis:// URL
// selecting database 0.
func StartRedis(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image(),
			ExposedPorts: []string{"6379/tcp"},
			Cmd:          []string{"redis-server", "--save", "", "--appendonly", "no"},
			Labels:       map[string]string{"app": "chat-service-test", "role": "user-cache"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections"),
				wait.ForListeningPort("6379/tcp"),
			).WithDeadline(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		tb.Fatalf("start redis user cache: %v", err)
	}
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			tb.Errorf("terminate redis user cache: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		tb.Fatalf("redis user cache host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		tb.Fatalf("redis user cache port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}
