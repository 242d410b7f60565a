package memory

import (
	"context"
	"testing"
	"time"
)

func TestLeaseAcquireExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewLeaseStore()

	ok, err := s.Acquire(ctx, "etl:coingecko", "worker-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	ok, err = s.Acquire(ctx, "etl:coingecko", "worker-b", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second owner must not acquire a held lease")
	}

	// Acquire is not re-entrant: a live lease blocks its own owner too,
	// otherwise two cycles under one owner could overlap.
	ok, err = s.Acquire(ctx, "etl:coingecko", "worker-a", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("holder must not re-acquire a live lease")
	}

	// Extension goes through Renew instead.
	ok, err = s.Renew(ctx, "etl:coingecko", "worker-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("renew by holder: ok=%v err=%v", ok, err)
	}
}

func TestLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewLeaseStore()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if ok, _ := s.Acquire(ctx, "etl:csv", "worker-a", time.Minute); !ok {
		t.Fatal("acquire failed")
	}

	now = now.Add(2 * time.Minute)
	ok, err := s.Acquire(ctx, "etl:csv", "worker-b", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expired lease should be acquirable by a new owner")
	}

	// The original holder lost the lease and cannot renew it.
	ok, err = s.Renew(ctx, "etl:csv", "worker-a", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("renew must fail after the lease was taken over")
	}
}

func TestLeaseReleaseByNonOwner(t *testing.T) {
	ctx := context.Background()
	s := NewLeaseStore()

	if ok, _ := s.Acquire(ctx, "etl:ws", "worker-a", time.Minute); !ok {
		t.Fatal("acquire failed")
	}
	if err := s.Release(ctx, "etl:ws", "worker-b"); err != nil {
		t.Fatalf("release by non-owner must be a no-op, got %v", err)
	}
	if ok, _ := s.Acquire(ctx, "etl:ws", "worker-b", time.Minute); ok {
		t.Fatal("lease should still be held by worker-a")
	}

	if err := s.Release(ctx, "etl:ws", "worker-a"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Acquire(ctx, "etl:ws", "worker-b", time.Minute); !ok {
		t.Fatal("released lease should be acquirable")
	}
}
