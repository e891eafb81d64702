package watchserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lumac/internal/diag"
)

// startTestServer builds a Server's handler directly onto an ephemeral
// listener -- New binds a fixed addr string for Serve's own
// ListenAndServe, but tests need a kernel-assigned port.
func startTestServer(t *testing.T) (*Server, string, func()) {
	t.Helper()
	s := New("127.0.0.1:0")

	mux := http.NewServeMux()
	mux.HandleFunc("/diagnostics", s.handleUpgrade)
	httpSrv := &http.Server{Handler: mux}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go httpSrv.Serve(listener)

	addr := listener.Addr().String()
	cleanup := func() {
		httpSrv.Close()
	}
	return s, addr, cleanup
}

func TestPublishDeliversToConnectedClient(t *testing.T) {
	s, addr, cleanup := startTestServer(t)
	defer cleanup()

	wsURL := "ws://" + addr + "/diagnostics"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give handleUpgrade's registration goroutine a moment to register the
	// client before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.ClientCount() != 1 {
		t.Fatalf("expected one connected client, got %d", s.ClientCount())
	}

	s.Publish(diag.Message{
		Kind:     diag.UnresolvedSymbol,
		Severity: diag.SeverityError,
		Text:     "unresolved symbol: foo",
		At:       diag.Location{File: "a.luma", Line: 3, Column: 5},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got wireMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != string(diag.UnresolvedSymbol) || got.Severity != "error" || !strings.Contains(got.Text, "foo") {
		t.Fatalf("unexpected wire message: %+v", got)
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	s, addr, cleanup := startTestServer(t)
	defer cleanup()

	wsURL := "ws://" + addr + "/diagnostics"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for s.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.ClientCount() != 0 {
		t.Fatalf("expected client to be removed after disconnect, got %d", s.ClientCount())
	}
}

func TestServeReturnsOnContextCancel(t *testing.T) {
	s := New("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
