package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/termwork/tasksync/internal/schema"
)

func TestWithTimeout_DeadlineIsTimeout(t *testing.T) {
	m := NewMemory()
	m.SetLatency(time.Second)
	g := WithTimeout(m, 20*time.Millisecond)

	start := time.Now()
	_, err := g.StartProcess(context.Background(), "review", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want timeout", err)
	}
	if !IsRetryable(err) {
		t.Error("timeout should be retryable")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("call took %v, deadline not applied", elapsed)
	}
	if got := len(m.Processes()); got != 0 {
		t.Errorf("process started despite timeout")
	}
}

func TestWithTimeout_PassesThrough(t *testing.T) {
	m := NewMemory()
	m.AddTask(schema.Task{ID: 16, Status: schema.StatusReady})
	g := WithTimeout(m, 0)

	task, err := g.TaskByID(context.Background(), 16)
	if err != nil {
		t.Fatalf("TaskByID failed: %v", err)
	}
	if task.ID != 16 {
		t.Errorf("ID = %d", task.ID)
	}

	if _, err := g.TaskByID(context.Background(), 17); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want not found", err)
	}
	if err := g.Claim(context.Background(), 16, "ann"); err != nil {
		t.Errorf("Claim failed: %v", err)
	}
}
