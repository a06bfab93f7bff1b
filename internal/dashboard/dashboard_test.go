package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/termwork/tasksync/internal/daemon"
)

func startServer(t *testing.T, config *Config) *Server {
	t.Helper()
	if config == nil {
		config = &Config{}
	}
	config.Host = "127.0.0.1"
	config.Port = 0
	config.Logger = log.New(io.Discard, "", 0)

	server := NewServer(config)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func connect(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	// Welcome message.
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		connect(t, ctx, server)
	}
	if count := server.ClientCount(); count != 3 {
		t.Errorf("Expected 3 clients, got %d", count)
	}
}

func TestHealth(t *testing.T) {
	server := startServer(t, &Config{Status: func() any { return map[string]int{"cycles": 4} }})

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string         `json:"status"`
		Sync   map[string]int `json:"sync"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body.Status != "ok" || body.Sync["cycles"] != 4 {
		t.Errorf("unexpected health %+v", body)
	}
}

func TestHandle_MountsExtraEndpoint(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: log.New(io.Discard, "", 0)})
	server.Handle("/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	resp, err := http.Get("http://" + server.GetAddr() + "/ping")
	if err != nil {
		t.Fatalf("GET /ping failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "pong" {
		t.Errorf("body = %q", data)
	}
}

func TestHandlerTaskEvent(t *testing.T) {
	server := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := connect(t, ctx, server)

	handler := NewHandler(server, nil, log.New(io.Discard, "", 0))
	handler.OnEvent(daemon.Event{Type: daemon.EventTaskUpdated, TaskID: 16, UserID: "ann", Status: "Reserved"})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeTaskUpdate {
		t.Fatalf("Expected message type %s, got %s", MessageTypeTaskUpdate, msg.Type)
	}
	var data TaskUpdateData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal task data: %v", err)
	}
	if data.TaskID != 16 || data.Status != "Reserved" {
		t.Errorf("unexpected task data %+v", data)
	}
}

func TestHandlerFollow(t *testing.T) {
	server := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := connect(t, ctx, server)

	handler := NewHandler(server, nil, log.New(io.Discard, "", 0))
	events := make(chan daemon.Event, 4)
	events <- daemon.Event{Type: daemon.EventRequestUpdated, RequestID: 3, Status: "CREATED"}
	events <- daemon.Event{Type: daemon.EventCycleFailed, CycleID: "c1", UserID: "ann", Error: "remote down"}
	close(events)

	handler.Follow(ctx, events)

	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypeRequestUpdate {
		t.Errorf("first message = %s, want %s", msg.Type, MessageTypeRequestUpdate)
	}
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeCycle {
		t.Fatalf("second message = %s, want %s", msg.Type, MessageTypeCycle)
	}
	var cycle CycleData
	if err := json.Unmarshal(msg.Data, &cycle); err != nil {
		t.Fatalf("Failed to unmarshal cycle data: %v", err)
	}
	if cycle.Phase != "failed" || cycle.Error != "remote down" {
		t.Errorf("unexpected cycle data %+v", cycle)
	}
	if msg := readMessage(t, ctx, conn); msg.Type != MessageTypeStats {
		t.Errorf("third message = %s, want %s", msg.Type, MessageTypeStats)
	}

	stats := handler.GetStats()
	if stats.RequestsCreated != 1 || stats.CyclesFailed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestWelcome(t *testing.T) {
	server := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	last := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	handler := NewHandler(server, func() Snapshot {
		return Snapshot{UserID: "ann", Sync: daemon.SyncStatus{Cycles: 7, LastSuccess: last}, Halted: "disk full"}
	}, log.New(io.Discard, "", 0))
	handler.OnEvent(daemon.Event{Type: daemon.EventTaskUpdated, TaskID: 16})

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeWelcome {
		t.Fatalf("first message = %s, want %s", msg.Type, MessageTypeWelcome)
	}
	var data WelcomeData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal welcome: %v", err)
	}
	if data.Stats.TasksUpdated != 1 {
		t.Errorf("welcome stats = %+v, want one task update", data.Stats)
	}
	if data.Snapshot == nil || data.Snapshot.UserID != "ann" || data.Snapshot.Sync.Cycles != 7 ||
		!data.Snapshot.Sync.LastSuccess.Equal(last) || data.Snapshot.Halted != "disk full" {
		t.Errorf("welcome snapshot = %+v", data.Snapshot)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	server := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := connect(t, ctx, server)
	if n := server.ClientCount(); n != 1 {
		t.Fatalf("ClientCount() = %d, want 1", n)
	}
	conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(3 * time.Second)
	for server.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client still registered after closing")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Broadcasting with no clients is a no-op.
	server.Broadcast(Message{Type: MessageTypeStats})
}
