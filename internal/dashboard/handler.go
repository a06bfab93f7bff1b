package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/termwork/tasksync/internal/daemon"
	"github.com/termwork/tasksync/internal/schema"
)

// CycleData describes a cycle transition.
type CycleData struct {
	CycleID string              `json:"cycle_id"`
	UserID  string              `json:"user_id"`
	Phase   string              `json:"phase"` // started, complete, failed
	Error   string              `json:"error,omitempty"`
	Report  *daemon.CycleReport `json:"report,omitempty"`
}

// TaskUpdateData contains task change information
type TaskUpdateData struct {
	TaskID int64  `json:"task_id"`
	UserID string `json:"user_id,omitempty"`
	Status string `json:"status,omitempty"`
}

// RequestUpdateData contains process request change information
type RequestUpdateData struct {
	RequestID int64  `json:"request_id"`
	UserID    string `json:"user_id,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// StatsData contains running totals since the handler started
type StatsData struct {
	CyclesComplete   int       `json:"cycles_complete"`
	CyclesFailed     int       `json:"cycles_failed"`
	TasksUpdated     int       `json:"tasks_updated"`
	RequestsCreated  int       `json:"requests_created"`
	RequestsRejected int       `json:"requests_rejected"`
	LastCycle        time.Time `json:"last_cycle,omitempty"`
}

// Snapshot is the facade state of the user a daemon synchronizes.
type Snapshot struct {
	UserID string            `json:"user_id"`
	Sync   daemon.SyncStatus `json:"sync"`
	Halted string            `json:"halted,omitempty"`
}

// DaemonSnapshot reads the current Snapshot of userID from d.
func DaemonSnapshot(d *daemon.Daemon, userID string) func() Snapshot {
	return func() Snapshot {
		snap := Snapshot{UserID: userID, Sync: d.Status(userID)}
		if err := d.Halted(); err != nil {
			snap.Halted = err.Error()
		}
		return snap
	}
}

// WelcomeData is sent to each client as it connects, so it can render
// state without waiting for the next cycle.
type WelcomeData struct {
	Stats    StatsData `json:"stats"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// Handler turns daemon events into dashboard messages.
type Handler struct {
	server   *Server
	snapshot func() Snapshot
	logger   *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates an event handler connected to a dashboard server and
// installs the welcome frame. snapshot may be nil.
func NewHandler(server *Server, snapshot func() Snapshot, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{server: server, snapshot: snapshot, logger: logger}
	server.SetWelcome(func() any { return h.Welcome() })
	return h
}

// Welcome returns the current totals and facade state.
func (h *Handler) Welcome() WelcomeData {
	w := WelcomeData{Stats: h.GetStats()}
	if h.snapshot != nil {
		snap := h.snapshot()
		w.Snapshot = &snap
	}
	return w
}

// Follow forwards events until the channel closes or ctx is done.
func (h *Handler) Follow(ctx context.Context, events <-chan daemon.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.OnEvent(ev)
		}
	}
}

// OnEvent handles one daemon event
func (h *Handler) OnEvent(ev daemon.Event) {
	switch ev.Type {
	case daemon.EventCycleStarted:
		h.send(MessageTypeCycle, ev.Time, CycleData{CycleID: ev.CycleID, UserID: ev.UserID, Phase: "started"})

	case daemon.EventCycleComplete, daemon.EventCycleFailed:
		phase := "complete"
		h.mu.Lock()
		if ev.Type == daemon.EventCycleFailed {
			phase = "failed"
			h.stats.CyclesFailed++
		} else {
			h.stats.CyclesComplete++
		}
		h.stats.LastCycle = ev.Time
		h.mu.Unlock()

		h.logger.Printf("Cycle %s for %s %s", ev.CycleID, ev.UserID, phase)
		h.send(MessageTypeCycle, ev.Time, CycleData{
			CycleID: ev.CycleID,
			UserID:  ev.UserID,
			Phase:   phase,
			Error:   ev.Error,
			Report:  ev.Report,
		})
		h.broadcastStats()

	case daemon.EventTaskUpdated:
		h.mu.Lock()
		h.stats.TasksUpdated++
		h.mu.Unlock()
		h.send(MessageTypeTaskUpdate, ev.Time, TaskUpdateData{TaskID: ev.TaskID, UserID: ev.UserID, Status: ev.Status})

	case daemon.EventRequestUpdated:
		h.mu.Lock()
		switch schema.RequestStatus(ev.Status) {
		case schema.RequestCreated:
			h.stats.RequestsCreated++
		case schema.RequestRejected:
			h.stats.RequestsRejected++
		}
		h.mu.Unlock()
		h.send(MessageTypeRequestUpdate, ev.Time, RequestUpdateData{
			RequestID: ev.RequestID,
			UserID:    ev.UserID,
			Status:    ev.Status,
			Message:   ev.Message,
		})

	default:
		h.logger.Printf("Ignoring unknown event type %q", ev.Type)
	}
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) broadcastStats() {
	h.send(MessageTypeStats, time.Now(), h.GetStats())
}

func (h *Handler) send(typ MessageType, at time.Time, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: at, Data: dataJSON})
}
