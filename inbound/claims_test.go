package inbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-marketplace-hooks/core"
)

func TestInMemoryClaimStore_RejectsCompletedDelivery(t *testing.T) {
	store := NewInMemoryClaimStore()
	store.Now = fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	claimID, accepted, err := store.Claim(context.Background(), "delivery-1", time.Minute)
	if err != nil || !accepted {
		t.Fatalf("expected first claim accepted, got accepted=%t err=%v", accepted, err)
	}
	if err := store.Complete(context.Background(), claimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, accepted, err = store.Claim(context.Background(), "delivery-1", time.Minute)
	if err != nil {
		t.Fatalf("claim duplicate: %v", err)
	}
	if accepted {
		t.Fatalf("expected completed delivery to be rejected")
	}
	status, attempts, ok := store.Status("delivery-1")
	if !ok || status != ClaimStatusComplete || attempts != 1 {
		t.Fatalf("unexpected status %q attempts=%d ok=%t", status, attempts, ok)
	}
}

func TestInMemoryClaimStore_RejectsInFlightDelivery(t *testing.T) {
	store := NewInMemoryClaimStore()
	if _, accepted, _ := store.Claim(context.Background(), "delivery-1", time.Minute); !accepted {
		t.Fatalf("expected first claim accepted")
	}
	if _, accepted, _ := store.Claim(context.Background(), "delivery-1", time.Minute); accepted {
		t.Fatalf("expected in-flight duplicate to be rejected")
	}
}

func TestInMemoryClaimStore_RecoversAfterLeaseExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryClaimStore()
	store.Now = func() time.Time { return now }

	if _, accepted, _ := store.Claim(context.Background(), "delivery-1", time.Minute); !accepted {
		t.Fatalf("expected first claim accepted")
	}
	now = now.Add(2 * time.Minute)
	_, accepted, err := store.Claim(context.Background(), "delivery-1", time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !accepted {
		t.Fatalf("expected claim to be accepted after lease expiry")
	}
	if _, attempts, _ := store.Status("delivery-1"); attempts != 2 {
		t.Fatalf("expected second attempt, got %d", attempts)
	}
}

func TestInMemoryClaimStore_FailMakesDeliveryRetryable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryClaimStore()
	store.Now = func() time.Time { return now }

	claimID, _, _ := store.Claim(context.Background(), "delivery-1", time.Minute)
	if err := store.Fail(context.Background(), claimID, errors.New("storage down"), now.Add(30*time.Second)); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if _, accepted, _ := store.Claim(context.Background(), "delivery-1", time.Minute); accepted {
		t.Fatalf("expected retry to wait for retryAt")
	}
	now = now.Add(31 * time.Second)
	if _, accepted, _ := store.Claim(context.Background(), "delivery-1", time.Minute); !accepted {
		t.Fatalf("expected retry to be accepted after retryAt")
	}
}

func TestInMemoryClaimStore_ForgetsCompletedAfterRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewInMemoryClaimStore()
	store.Retention = time.Hour
	store.Now = func() time.Time { return now }

	claimID, _, _ := store.Claim(context.Background(), "delivery-1", time.Minute)
	_ = store.Complete(context.Background(), claimID)
	now = now.Add(time.Hour)
	if _, accepted, _ := store.Claim(context.Background(), "delivery-1", time.Minute); !accepted {
		t.Fatalf("expected key to be forgotten after retention")
	}
}

func TestInMemoryClaimStore_StaleClaimIDsAreIgnored(t *testing.T) {
	store := NewInMemoryClaimStore()
	if err := store.Complete(context.Background(), "claim_404"); err != nil {
		t.Fatalf("expected unknown claim to be ignored, got %v", err)
	}
	if err := store.Fail(context.Background(), "claim_404", nil, time.Time{}); err != nil {
		t.Fatalf("expected unknown claim to be ignored, got %v", err)
	}
}

func TestInMemoryClaimStore_RequiresKey(t *testing.T) {
	store := NewInMemoryClaimStore()
	_, _, err := store.Claim(context.Background(), "  ", time.Minute)
	if !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
	if err := store.Complete(context.Background(), ""); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
}

func TestClaimFailedError_IsNotARequestError(t *testing.T) {
	err := ClaimFailedError(errors.New("db down"), "inbound: claim delivery", map[string]any{"delivery_key": "k"})
	if core.IsRequestError(err) {
		t.Fatalf("expected claim failure not to be classified as request error")
	}
	if !core.HasTextCode(err, core.ErrorInternal) {
		t.Fatalf("expected internal text code, got %v", err)
	}
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
