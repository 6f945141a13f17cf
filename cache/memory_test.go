package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_GetMiss(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "absent")
	if err != ErrMiss {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.SetWithExpiry(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v" {
		t.Fatalf("got %q, want %q", got, "v")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	m.SetClock(func() time.Time { return now })

	if err := m.SetWithExpiry(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}

	now = now.Add(61 * time.Second)
	if _, err := m.Get(ctx, "k"); err != ErrMiss {
		t.Fatalf("expected ErrMiss after TTL, got %v", err)
	}
}

func TestMemory_IncrementCreatesAtOne(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	n, err := m.Increment(ctx, "ctr")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("first increment: got %d, want 1", n)
	}
	n, _ = m.Increment(ctx, "ctr")
	if n != 2 {
		t.Fatalf("second increment: got %d, want 2", n)
	}
}

func TestMemory_IncrementAfterExpiryResets(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	m.SetClock(func() time.Time { return now })

	m.Increment(ctx, "ctr")
	m.Increment(ctx, "ctr")
	m.Expire(ctx, "ctr", time.Minute)

	now = now.Add(2 * time.Minute)
	n, err := m.Increment(ctx, "ctr")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("increment after expiry: got %d, want 1", n)
	}
}

func TestMemory_KeysPrefix(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.SetWithExpiry(ctx, "health:metrics:a", []byte("1"), 0)
	m.SetWithExpiry(ctx, "health:metrics:b", []byte("2"), 0)
	m.SetWithExpiry(ctx, "search:x", []byte("3"), 0)

	keys, err := m.Keys(ctx, "health:metrics:")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2: %v", len(keys), keys)
	}
}
