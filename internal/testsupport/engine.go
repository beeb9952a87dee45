package testsupport

import (
	"context"
	"testing"
	"time"

	"cgmanager/internal/amcp"
	"cgmanager/internal/logging"
)

// StartEngine runs an in-process engine simulator for the test.
func StartEngine(t testing.TB) *amcp.MockServer {
	t.Helper()

	server, err := amcp.NewMockServer()
	if err != nil {
		t.Fatalf("start engine simulator: %v", err)
	}
	t.Cleanup(func() {
		_ = server.Close()
	})
	return server
}

// Connect dials addr with a supervised connection and waits until it is
// established. The connection stops when the test ends.
func Connect(t testing.TB, addr string) *amcp.Connection {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	conn := amcp.NewConnection(amcp.ConnectionOptions{
		Address:           addr,
		DialTimeout:       time.Second,
		RequestTimeout:    2 * time.Second,
		ReconnectInterval: 20 * time.Millisecond,
		Logger:            logging.NewNop(),
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(3 * time.Second)
	for !conn.Connected() {
		if time.Now().After(deadline) {
			t.Fatalf("engine at %s not reachable", addr)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}
