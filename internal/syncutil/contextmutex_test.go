package syncutil

import (
	"context"
	"testing"
	"time"
)

func TestLockContextSerializes(t *testing.T) {
	m := NewContextShardedMutex()

	unlock, err := m.LockContext(context.Background(), "ledger")
	if err != nil {
		t.Fatalf("first lock failed: %v", err)
	}

	// Second acquisition of the same key must block until the first unlock.
	acquired := make(chan struct{})
	go func() {
		unlock2, err := m.LockContext(context.Background(), "ledger")
		if err != nil {
			t.Errorf("second lock failed: %v", err)
			return
		}
		close(acquired)
		unlock2()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after unlock")
	}
}

func TestLockContextCancellation(t *testing.T) {
	m := NewContextShardedMutex()

	unlock, err := m.LockContext(context.Background(), "ledger")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := m.LockContext(ctx, "ledger"); err == nil {
		t.Fatal("expected context error while lock held")
	}
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	m := NewContextShardedMutex()

	unlock, err := m.LockContext(context.Background(), "ledger-a")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	unlock2, err := m.LockContext(ctx, "ledger-zz")
	if err != nil {
		t.Fatalf("independent key blocked: %v", err)
	}
	unlock2()
}
