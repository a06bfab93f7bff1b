package daemon

import (
	"time"
)

// Event types.
const (
	EventCycleStarted   = "cycle_started"
	EventCycleComplete  = "cycle_complete"
	EventCycleFailed    = "cycle_failed"
	EventRequestUpdated = "request_updated"
	EventTaskUpdated    = "task_updated"
)

// Event is one status notification.
type Event struct {
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	UserID  string    `json:"user_id,omitempty"`
	CycleID string    `json:"cycle_id,omitempty"`

	// TaskID and Status are set on task_updated and request_updated.
	TaskID    int64  `json:"task_id,omitempty"`
	RequestID int64  `json:"request_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`

	// Report is set on cycle_complete and cycle_failed.
	Report *CycleReport `json:"report,omitempty"`
	Error  string       `json:"error,omitempty"`
}

const subscriberBuffer = 64

// Subscribe returns a channel receiving every event published from now on
// and a function that unsubscribes and closes the channel. A subscriber
// that falls behind loses events rather than stalling cycles.
func (d *Daemon) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.subMu.Unlock()

	cancel := func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (d *Daemon) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
