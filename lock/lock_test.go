package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/thatique/keep/lock"
)

func TestAcquireExclusive(t *testing.T) {
	dir := t.TempDir()

	h1, err := lock.Acquire(dir, "widget")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == nil {
		t.Fatal("first Acquire should succeed")
	}

	h2, err := lock.Acquire(dir, "widget")
	if err != nil {
		t.Fatal(err)
	}
	if h2 != nil {
		t.Fatal("second Acquire of a held lock should return nil, nil")
	}

	if err := h1.Release(); err != nil {
		t.Fatal(err)
	}

	h3, err := lock.Acquire(dir, "widget")
	if err != nil {
		t.Fatal(err)
	}
	if h3 == nil {
		t.Fatal("Acquire after Release should succeed")
	}
	_ = h3.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	h, err := lock.Acquire(dir, "widget")
	if err != nil || h == nil {
		t.Fatalf("Acquire failed: h=%v err=%v", h, err)
	}
	if err := h.Release(); err != nil {
		t.Fatal(err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got %v", err)
	}
}

func TestAwaitUnblocksOnRelease(t *testing.T) {
	dir := t.TempDir()
	h1, err := lock.Acquire(dir, "widget")
	if err != nil || h1 == nil {
		t.Fatalf("Acquire failed: h=%v err=%v", h1, err)
	}

	done := make(chan struct{})
	var h2 *lock.Handle
	var awaitErr error
	go func() {
		defer close(done)
		h2, awaitErr = lock.Await(context.Background(), dir, "widget")
	}()

	time.Sleep(50 * time.Millisecond)
	if err := h1.Release(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not unblock after Release")
	}
	if awaitErr != nil {
		t.Fatal(awaitErr)
	}
	if h2 == nil {
		t.Fatal("Await should have acquired the lock")
	}
	_ = h2.Release()
}

func TestAwaitTimeoutExpires(t *testing.T) {
	dir := t.TempDir()
	h1, err := lock.Acquire(dir, "widget")
	if err != nil || h1 == nil {
		t.Fatalf("Acquire failed: h=%v err=%v", h1, err)
	}
	defer h1.Release()

	_, err = lock.AwaitTimeout(context.Background(), dir, "widget", 200*time.Millisecond)
	if err == nil {
		t.Fatal("AwaitTimeout should fail once the lock stays held past the timeout")
	}
}
