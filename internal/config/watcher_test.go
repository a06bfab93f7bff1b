package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, path string) <-chan *Config {
	t.Helper()
	changes := make(chan *Config, 8)
	w, err := NewWatcher(path, 20*time.Millisecond, func(c *Config) { changes <- c }, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return changes
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "user: ann\n")
	changes := startWatcher(t, path)

	if err := os.WriteFile(path, []byte("user: ann\nsync:\n  interval: 1m\n  claim_limit: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.Sync.Interval != time.Minute || cfg.Sync.ClaimLimit != 3 {
			t.Errorf("reloaded interval=%v claim_limit=%d, want 1m/3", cfg.Sync.Interval, cfg.Sync.ClaimLimit)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_IgnoresInvalidAndOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "user: ann\n")
	changes := startWatcher(t, path)

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("sync:\n  workers: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		t.Fatalf("unexpected reload: %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("sync:\n  workers: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-changes:
		if cfg.Sync.Workers != 3 {
			t.Errorf("Workers = %d, want 3", cfg.Sync.Workers)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_StartStop(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "user: ann\n")
	w, err := NewWatcher(path, 0, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("expected error starting twice")
	}
	if !w.IsRunning() {
		t.Error("watcher should be running")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
	if w.IsRunning() {
		t.Error("watcher should be stopped")
	}

	if _, err := NewWatcher("", 0, nil, nil); err == nil {
		t.Error("expected error for empty path")
	}
}
