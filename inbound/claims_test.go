package inbound

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryClaimStore_RecoversAfterLeaseExpiry(t *testing.T) {
	store := NewInMemoryClaimStore()
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	claimID, accepted, err := store.Claim(context.Background(), "T1:Ev1", time.Minute)
	if err != nil {
		t.Fatalf("claim first: %v", err)
	}
	if !accepted || claimID == "" {
		t.Fatalf("expected first claim to be accepted")
	}

	if _, accepted, err := store.Claim(context.Background(), "T1:Ev1", time.Minute); err != nil {
		t.Fatalf("claim while lease active: %v", err)
	} else if accepted {
		t.Fatalf("expected claim to be rejected while lease is active")
	}

	now = now.Add(2 * time.Minute)
	reclaimID, accepted, err := store.Claim(context.Background(), "T1:Ev1", time.Minute)
	if err != nil {
		t.Fatalf("claim after lease expiry: %v", err)
	}
	if !accepted || reclaimID == "" {
		t.Fatalf("expected claim recovery after lease expiry")
	}
	if reclaimID == claimID {
		t.Fatalf("expected new claim id after lease-expiry recovery")
	}
}

func TestInMemoryClaimStore_CompletedKeyIsDuplicateUntilTTL(t *testing.T) {
	store := NewInMemoryClaimStore()
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	claimID, _, _ := store.Claim(ctx, "T1:Ev2", 5*time.Minute)
	if err := store.Complete(ctx, claimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	now = now.Add(4 * time.Minute)
	if _, accepted, _ := store.Claim(ctx, "T1:Ev2", 5*time.Minute); accepted {
		t.Fatalf("expected completed delivery to stay deduped inside ttl")
	}
	now = now.Add(2 * time.Minute)
	if _, accepted, _ := store.Claim(ctx, "T1:Ev2", 5*time.Minute); !accepted {
		t.Fatalf("expected key to be claimable after ttl")
	}
}

func TestInMemoryClaimStore_FailReleasesForRetry(t *testing.T) {
	store := NewInMemoryClaimStore()
	ctx := context.Background()
	claimID, _, _ := store.Claim(ctx, "T1:Ev3", time.Minute)
	if err := store.Fail(ctx, claimID, errors.New("handler failed"), time.Time{}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if _, accepted, _ := store.Claim(ctx, "T1:Ev3", time.Minute); !accepted {
		t.Fatalf("expected failed delivery to be retryable")
	}
}
