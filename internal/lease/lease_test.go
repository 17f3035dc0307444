package lease

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryAcquireRelease(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	l, err := reg.Acquire(ctx, "acc-1", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if l.AccountID != "acc-1" || l.Token == "" {
		t.Errorf("lease = %+v", l)
	}

	if _, err := reg.Acquire(ctx, "acc-1", time.Minute); !errors.Is(err, ErrHeld) {
		t.Fatalf("second acquire: %v, want ErrHeld", err)
	}

	// Different accounts are independent.
	other, err := reg.Acquire(ctx, "acc-2", time.Minute)
	if err != nil {
		t.Fatalf("acquire other account: %v", err)
	}
	_ = reg.Release(ctx, other)

	if err := reg.Release(ctx, l); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := reg.Acquire(ctx, "acc-1", time.Minute); err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	if _, err := reg.Acquire(ctx, "acc-1", time.Millisecond); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := reg.Acquire(ctx, "acc-1", time.Minute); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
}

func TestMemoryStaleReleaseIsNoop(t *testing.T) {
	reg := NewMemory()
	ctx := context.Background()

	stale, err := reg.Acquire(ctx, "acc-1", time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	fresh, err := reg.Acquire(ctx, "acc-1", time.Minute)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}

	// The slow first cycle releasing its expired lease must not free the
	// fresh owner's.
	if err := reg.Release(ctx, stale); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := reg.Acquire(ctx, "acc-1", time.Minute); !errors.Is(err, ErrHeld) {
		t.Fatalf("fresh lease lost: %v", err)
	}
	_ = reg.Release(ctx, fresh)
}
