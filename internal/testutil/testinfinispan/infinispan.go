// Package testinfinispan starts an Infinispan server whose RESP connector
// stands in for Redis as the user-profile cache.
package testinfinispan

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultImage can be replaced with CHAT_SERVICE_TEST_INFINISPAN_IMAGE.
const DefaultImage = "quay.io/infinispan/server:15.2"

const (
	username = "chat"
	password = "chat-secret"
)

// Infinispan holds connection details for a running Infinispan container.
type Infinispan struct {
	Host     string // host:port of the RESP connector
	Username string
	Password string
}

func image() string {
	if v := os.Getenv("CHAT_SERVICE_TEST_INFINISPAN_IMAGE"); v != "" {
		return v
	}
	return DefaultImage
}

// StartInfinispan starts a disposable Infinispan container and waits until its
// RESP connector answers PING.
func StartInfinispan(tb testing.TB) Infinispan {
	tb.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image(),
			ExposedPorts: []string{"11222/tcp"},
			Env:          map[string]string{"USER": username, "PASS": password},
			Labels:       map[string]string{"app": "chat-service-test", "role": "user-cache"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("11222/tcp"),
				wait.ForLog("Started connector Resp"),
			).WithDeadline(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		tb.Fatalf("start infinispan user cache: %v", err)
	}
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			tb.Errorf("terminate infinispan user cache: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		tb.Fatalf("infinispan user cache host: %v", err)
	}
	port, err := container.MappedPort(ctx, "11222")
	if err != nil {
		tb.Fatalf("infinispan user cache port: %v", err)
	}
	ispn := Infinispan{
		Host:     fmt.Sprintf("%s:%s", host, port.Port()),
		Username: username,
		Password: password,
	}

	readyCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := ispn.waitForRESP(readyCtx); err != nil {
		tb.Fatalf("infinispan RESP connector not ready: %v", err)
	}
	return ispn
}

// waitForRESP pings until the connector answers or ctx expires. Infinispan
// does not implement HELLO, so the client is pinned to RESP2.
func (i Infinispan) waitForRESP(ctx context.Context) error {
	client := goredis.NewClient(&goredis.Options{
		Addr:     i.Host,
		Username: i.Username,
		Password: i.Password,
		Protocol: 2,
	})
	defer client.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last ping: %v)", ctx.Err(), err)
		case <-ticker.C:
		}
	}
}
