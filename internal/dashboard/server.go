// Package dashboard streams sync daemon events to websocket clients.
//
// The server broadcasts cycle progress, task changes and request outcomes
// so a UI can follow reconciliation without polling the local store.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeWelcome is the first frame every client receives
	MessageTypeWelcome MessageType = "welcome"

	// MessageTypeCycle reports a cycle starting, completing or failing
	MessageTypeCycle MessageType = "cycle"

	// MessageTypeTaskUpdate indicates a local task was written by a cycle
	MessageTypeTaskUpdate MessageType = "task_update"

	// MessageTypeRequestUpdate indicates a process request changed state
	MessageTypeRequestUpdate MessageType = "request_update"

	// MessageTypeStats carries running totals
	MessageTypeStats MessageType = "stats"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// outboxSize is how many frames a client may fall behind before it is
// disconnected.
const outboxSize = 64

const writeTimeout = 5 * time.Second

// Server accepts websocket followers and fans messages out to them. Each
// client has its own outbox, so a slow client never delays the others.
type Server struct {
	addr     string
	listener net.Listener
	srv      *http.Server
	mux      *http.ServeMux
	health   func() any
	logger   *log.Logger

	mu      sync.Mutex
	welcome func() any
	clients map[chan []byte]struct{}
	closed  bool
	conns   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds server configuration
type Config struct {
	// Host to bind (default: all interfaces)
	Host string

	// Port to listen on (default: 8610, 0 picks a free port)
	Port int

	// Status, when set, is reported under "sync" by /health
	Status func() any

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8610,
		Logger: log.Default(),
	}
}

// NewServer creates a dashboard server. It serves /ws and /health.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:    net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		mux:     http.NewServeMux(),
		health:  config.Status,
		logger:  config.Logger,
		clients: make(map[chan []byte]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// Handle mounts an extra handler (e.g. the remote RPC endpoint). Call it
// before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// SetWelcome sets the payload of the welcome frame sent to each new client.
func (s *Server) SetWelcome(fn func() any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.welcome = fn
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	var err error
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := s.srv.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("server shutdown error: %w", shutdownErr)
		}
	}
	// Shutdown does not track hijacked websocket connections.
	s.conns.Wait()
	s.logger.Println("Dashboard server stopped")
	return err
}

// Broadcast queues msg for every connected client. A client whose outbox
// is full is dropped.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Failed to marshal %s message: %v", msg.Type, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for out := range s.clients {
		select {
		case out <- frame:
		default:
			s.logger.Printf("Client fell %d messages behind, disconnecting", outboxSize)
			delete(s.clients, out)
			close(out)
		}
	}
}

// register adds a client and queues its welcome frame. It returns nil once
// the server is stopping.
func (s *Server) register() chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	out := make(chan []byte, outboxSize)
	welcome := Message{Type: MessageTypeWelcome, Timestamp: time.Now()}
	if s.welcome != nil {
		data, err := json.Marshal(s.welcome())
		if err != nil {
			s.logger.Printf("Failed to marshal welcome: %v", err)
		} else {
			welcome.Data = data
		}
	}
	if frame, err := json.Marshal(welcome); err == nil {
		out <- frame
	}

	s.clients[out] = struct{}{}
	s.conns.Add(1)
	s.logger.Printf("Client connected (total: %d)", len(s.clients))
	return out
}

func (s *Server) unregister(out chan []byte) {
	s.mu.Lock()
	if _, ok := s.clients[out]; ok {
		delete(s.clients, out)
		close(out)
	}
	n := len(s.clients)
	s.mu.Unlock()
	s.conns.Done()
	s.logger.Printf("Client disconnected (total: %d)", n)
}

// handleWebSocket drains one client's outbox until the client goes away,
// falls behind, or the server stops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	out := s.register()
	if out == nil {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.unregister(out)

	// Followers never send anything; CloseRead notices when they leave.
	ctx := conn.CloseRead(s.ctx)
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case frame, ok := <-out:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.logger.Printf("Failed to send to client: %v", err)
				_ = conn.CloseNow()
				return
			}
		}
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	}
	if s.health != nil {
		body["sync"] = s.health()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
