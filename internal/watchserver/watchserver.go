// Package watchserver pushes diagnostics to a connected editor/IDE client
// over a websocket while a build runs in watch mode (spec.md §2's
// "Diagnostics & driver glue", SPEC_FULL §2). It is grounded directly on
// the teacher's internal/network websocket server
// (WebSocketListen/websocket_server.go's broadcast-to-all-clients shape):
// an http.Server upgrades connections through gorilla/websocket, tracks
// connected clients in a mutex-protected map, and offers a Broadcast that
// fans a message out to every still-open client, dropping any whose write
// fails -- the same "client.closed" bookkeeping the teacher's
// WebSocketBroadcast uses.
//
// The server has no domain logic of its own: internal/driver wires it in
// by setting diag.Sink.Listener to Server.Publish, so every diagnostic
// message becomes visible to a connected client at the moment it is
// reported (spec.md §7: watch mode observes the dependency-fixed-point
// loop "as it makes progress", not only at the end of a build).
package watchserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lumac/internal/diag"
)

// wireMessage is the JSON shape pushed to each client -- a flattened
// diag.Message, since diag.Message itself carries no json tags (it is not
// meant to be a wire type outside this one package).
type wireMessage struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Text     string `json:"text"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

func toWireMessage(m diag.Message) wireMessage {
	sev := "error"
	if m.Severity == diag.SeverityWarning {
		sev = "warning"
	}
	return wireMessage{
		Kind:     string(m.Kind),
		Severity: sev,
		Text:     m.Text,
		File:     m.At.File,
		Line:     m.At.Line,
		Column:   m.At.Column,
	}
}

// client is one connected websocket peer.
type client struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (c *client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("watchserver: client %s is closed", c.id)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.closed = true
		return err
	}
	return nil
}

// Server is a diagnostics-over-websocket endpoint. The zero value is not
// usable; construct with New.
type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	nextID  int
}

// New builds a Server bound to addr (e.g. "127.0.0.1:7417", spec.md §6
// config surface's WatchAddr). It does not start listening until Serve is
// called, mirroring the teacher's WebSocketListen constructing the server
// struct before handing its Handler to an http.Server.
func New(addr string) *Server {
	s := &Server{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/diagnostics", s.handleUpgrade)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("watch-client-%d", s.nextID)
	c := &client{id: id, conn: conn}
	s.clients[id] = c
	s.mu.Unlock()

	// Drain and discard anything the client sends -- this is a
	// publish-only stream (spec.md's watch mode pushes diagnostics, it
	// does not accept commands back) -- purely to notice disconnects,
	// exactly like the teacher's readMessages goroutine.
	go func() {
		defer s.disconnect(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) disconnect(id string) {
	s.mu.Lock()
	c, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
	}
	s.mu.Unlock()
	if ok {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.conn.Close()
	}
}

// Serve starts accepting connections; it blocks until ctx is cancelled or
// the listener fails, then shuts the underlying http.Server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Publish fans m out to every connected client, matching diag.Sink's
// Listener signature -- internal/driver assigns this method (bound to a
// running Server) directly to diags.Listener in watch mode. A client whose
// write fails is dropped, the same "lastErr, keep going" policy the
// teacher's WebSocketBroadcast uses (a slow or gone editor never blocks
// diagnostics reaching the others).
func (s *Server) Publish(m diag.Message) {
	payload, err := json.Marshal(toWireMessage(m))
	if err != nil {
		return
	}

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(payload); err != nil {
			s.disconnect(c.id)
		}
	}
}

// ClientCount reports how many clients are currently connected (used by
// cmd/lumac's watch command to print a one-line status banner).
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
