package inbound

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultClaimLease     = 2 * time.Minute
	DefaultClaimRetention = 24 * time.Hour
)

// ClaimStore records webhook deliveries so a delivery is processed at most
// once. Claim returns accepted=false while the key is in flight or completed.
type ClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

type ClaimStatus string

const (
	ClaimStatusProcessing ClaimStatus = "processing"
	ClaimStatusRetryReady ClaimStatus = "retry_ready"
	ClaimStatusComplete   ClaimStatus = "complete"
)

type claimEntry struct {
	Key            string
	Status         ClaimStatus
	ClaimID        string
	Attempts       int
	LeaseExpiresAt time.Time
	RetryAt        time.Time
	CompletedAt    time.Time
}

type InMemoryClaimStore struct {
	// Retention is how long completed keys are remembered.
	Retention time.Duration
	Now       func() time.Time

	mu      sync.Mutex
	entries map[string]claimEntry
	claims  map[string]string
	nextID  int
}

func NewInMemoryClaimStore() *InMemoryClaimStore {
	return &InMemoryClaimStore{
		Retention: DefaultClaimRetention,
		entries:   map[string]claimEntry{},
		claims:    map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *InMemoryClaimStore) Claim(
	_ context.Context,
	key string,
	lease time.Duration,
) (string, bool, error) {
	if s == nil {
		return "", false, inboundInternal("inbound: claim store is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, inboundBadInput("inbound: delivery key is required", nil)
	}
	now := s.now()
	if lease <= 0 {
		lease = DefaultClaimLease
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureMapsLocked()
	s.evictExpiredLocked(now)
	entry, exists := s.entries[key]
	if !exists {
		claimID := s.nextClaimID()
		s.entries[key] = claimEntry{
			Key:            key,
			Status:         ClaimStatusProcessing,
			ClaimID:        claimID,
			Attempts:       1,
			LeaseExpiresAt: now.Add(lease),
		}
		s.claims[claimID] = key
		return claimID, true, nil
	}

	switch entry.Status {
	case ClaimStatusComplete:
		return "", false, nil
	case ClaimStatusProcessing:
		if now.Before(entry.LeaseExpiresAt) {
			return "", false, nil
		}
	case ClaimStatusRetryReady:
		if !entry.RetryAt.IsZero() && now.Before(entry.RetryAt) {
			return "", false, nil
		}
	}

	if entry.ClaimID != "" {
		delete(s.claims, entry.ClaimID)
	}
	claimID := s.nextClaimID()
	entry.Status = ClaimStatusProcessing
	entry.ClaimID = claimID
	entry.Attempts++
	entry.LeaseExpiresAt = now.Add(lease)
	entry.RetryAt = time.Time{}
	s.entries[key] = entry
	s.claims[claimID] = key
	return claimID, true, nil
}

func (s *InMemoryClaimStore) Complete(_ context.Context, claimID string) error {
	if s == nil {
		return inboundInternal("inbound: claim store is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return inboundBadInput("inbound: claim id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureMapsLocked()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	delete(s.claims, claimID)
	entry, exists := s.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != ClaimStatusProcessing {
		return nil
	}
	entry.Status = ClaimStatusComplete
	entry.CompletedAt = s.now()
	entry.LeaseExpiresAt = time.Time{}
	entry.RetryAt = time.Time{}
	s.entries[key] = entry
	return nil
}

func (s *InMemoryClaimStore) Fail(
	_ context.Context,
	claimID string,
	_ error,
	retryAt time.Time,
) error {
	if s == nil {
		return inboundInternal("inbound: claim store is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return inboundBadInput("inbound: claim id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureMapsLocked()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	delete(s.claims, claimID)
	entry, exists := s.entries[key]
	if !exists || entry.ClaimID != claimID || entry.Status != ClaimStatusProcessing {
		return nil
	}
	if retryAt.IsZero() {
		retryAt = s.now()
	}
	entry.Status = ClaimStatusRetryReady
	entry.RetryAt = retryAt.UTC()
	entry.LeaseExpiresAt = time.Time{}
	s.entries[key] = entry
	return nil
}

// Status reports the state of a delivery key, mainly for diagnostics.
func (s *InMemoryClaimStore) Status(key string) (ClaimStatus, int, bool) {
	if s == nil {
		return "", 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(key)]
	if !ok {
		return "", 0, false
	}
	return entry.Status, entry.Attempts, true
}

func (s *InMemoryClaimStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InMemoryClaimStore) retention() time.Duration {
	if s.Retention > 0 {
		return s.Retention
	}
	return DefaultClaimRetention
}

func (s *InMemoryClaimStore) ensureMapsLocked() {
	if s.entries == nil {
		s.entries = map[string]claimEntry{}
	}
	if s.claims == nil {
		s.claims = map[string]string{}
	}
}

func (s *InMemoryClaimStore) nextClaimID() string {
	s.nextID++
	return fmt.Sprintf("claim_%d", s.nextID)
}

func (s *InMemoryClaimStore) evictExpiredLocked(now time.Time) {
	retention := s.retention()
	for key, entry := range s.entries {
		if entry.Status != ClaimStatusComplete {
			continue
		}
		if !now.Before(entry.CompletedAt.Add(retention)) {
			delete(s.entries, key)
		}
	}
}

var _ ClaimStore = (*InMemoryClaimStore)(nil)
