package store

import (
	"context"
	"testing"
	"time"
)

func TestLeaseStore_Exclusive(t *testing.T) {
	db := setupTestDB(t)
	leases := NewLeaseStore(db)
	ctx := context.Background()

	tests := []struct {
		name   string
		holder string
		want   bool
	}{
		{"first holder", "daemon", true},
		{"second holder blocked", "cli", false},
		{"holder extends", "daemon", true},
	}
	for _, tt := range tests {
		got, err := leases.Acquire(ctx, "alejandro", tt.holder, time.Minute)
		if err != nil {
			t.Fatalf("%s: Acquire() failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: Acquire() = %v, want %v", tt.name, got, tt.want)
		}
	}

	// Leases are per user.
	if ok, err := leases.Acquire(ctx, "maria", "cli", time.Minute); err != nil || !ok {
		t.Errorf("Acquire(maria) = %v, %v; want true", ok, err)
	}

	// Releasing someone else's lease does nothing.
	if err := leases.Release(ctx, "alejandro", "cli"); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if holder, _ := leases.Holder(ctx, "alejandro"); holder != "daemon" {
		t.Errorf("Holder() = %q, want daemon", holder)
	}

	if err := leases.Release(ctx, "alejandro", "daemon"); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if ok, err := leases.Acquire(ctx, "alejandro", "cli", time.Minute); err != nil || !ok {
		t.Errorf("Acquire() after release = %v, %v; want true", ok, err)
	}
}

func TestLeaseStore_ExpiredLeaseIsTaken(t *testing.T) {
	leases := NewLeaseStore(setupTestDB(t))
	ctx := context.Background()

	if ok, err := leases.Acquire(ctx, "alejandro", "crashed", -time.Second); err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v", ok, err)
	}
	if holder, _ := leases.Holder(ctx, "alejandro"); holder != "" {
		t.Errorf("Holder() = %q for an expired lease, want none", holder)
	}
	if ok, err := leases.Acquire(ctx, "alejandro", "daemon", time.Minute); err != nil || !ok {
		t.Errorf("Acquire() over an expired lease = %v, %v; want true", ok, err)
	}
}
