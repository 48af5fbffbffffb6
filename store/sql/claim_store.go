package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/inbound"
)

// ClaimStore is the durable inbound.ClaimStore. Every state change is a
// single conditional statement so concurrent deliveries of one key race on
// the database rather than in process memory.
type ClaimStore struct {
	// Retention is how long completed keys keep rejecting duplicates.
	Retention time.Duration
	Now       func() time.Time

	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
}

func NewClaimStore(db *bun.DB) (*ClaimStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &ClaimStore{
		Retention: inbound.DefaultClaimRetention,
		db:        db,
		repo:      repo,
	}, nil
}

func (s *ClaimStore) Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: claim store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, core.NewBadInputError("sqlstore: delivery key is required", nil)
	}
	if lease <= 0 {
		lease = inbound.DefaultClaimLease
	}
	now := s.now()
	leaseExpiresAt := now.Add(lease)
	claimID := uuid.NewString()

	record := &webhookDeliveryRecord{
		ID:             uuid.NewString(),
		DeliveryKey:    key,
		ClaimID:        claimID,
		Status:         string(inbound.ClaimStatusProcessing),
		Attempts:       1,
		LeaseExpiresAt: &leaseExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	if err == nil {
		return claimID, true, nil
	}
	if !isUniqueViolation(err) {
		return "", false, fmt.Errorf("sqlstore: insert webhook delivery: %w", err)
	}

	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("claim_id = ?", claimID).
		Set("status = ?", string(inbound.ClaimStatusProcessing)).
		Set("attempts = attempts + 1").
		Set("lease_expires_at = ?", leaseExpiresAt).
		Set("next_attempt_at = NULL").
		Set("completed_at = NULL").
		Set("updated_at = ?", now).
		Where("delivery_key = ?", key).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("(status = ? AND lease_expires_at <= ?)", string(inbound.ClaimStatusProcessing), now).
				WhereOr("(status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))", string(inbound.ClaimStatusRetryReady), now).
				WhereOr("(status = ? AND completed_at <= ?)", string(inbound.ClaimStatusComplete), now.Add(-s.retention()))
		}).
		Exec(ctx)
	if err != nil {
		return "", false, fmt.Errorf("sqlstore: reclaim webhook delivery: %w", err)
	}
	if rowsAffected(res) != 1 {
		return "", false, nil
	}
	return claimID, true, nil
}

func (s *ClaimStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return core.NewBadInputError("sqlstore: claim id is required", nil)
	}
	now := s.now()
	_, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", string(inbound.ClaimStatusComplete)).
		Set("completed_at = ?", now).
		Set("lease_expires_at = NULL").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", now).
		Where("claim_id = ?", claimID).
		Where("status = ?", string(inbound.ClaimStatusProcessing)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: complete webhook delivery: %w", err)
	}
	return nil
}

func (s *ClaimStore) Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: claim store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return core.NewBadInputError("sqlstore: claim id is required", nil)
	}
	now := s.now()
	if retryAt.IsZero() {
		retryAt = now
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", string(inbound.ClaimStatusRetryReady)).
		Set("next_attempt_at = ?", retryAt.UTC()).
		Set("lease_expires_at = NULL").
		Set("last_error = ?", lastError).
		Set("updated_at = ?", now).
		Where("claim_id = ?", claimID).
		Where("status = ?", string(inbound.ClaimStatusProcessing)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: fail webhook delivery: %w", err)
	}
	return nil
}

// Status reports the state and attempt count of a delivery key.
func (s *ClaimStore) Status(ctx context.Context, key string) (inbound.ClaimStatus, int, bool, error) {
	if s == nil || s.repo == nil {
		return "", 0, false, fmt.Errorf("sqlstore: claim store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("delivery_key", "=", strings.TrimSpace(key)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return "", 0, false, err
	}
	if len(records) == 0 {
		return "", 0, false, nil
	}
	return inbound.ClaimStatus(records[0].Status), records[0].Attempts, true, nil
}

// PruneCompleted deletes completed deliveries older than the retention window
// and returns how many rows were removed.
func (s *ClaimStore) PruneCompleted(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: claim store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*webhookDeliveryRecord)(nil)).
		Where("status = ?", string(inbound.ClaimStatusComplete)).
		Where("completed_at <= ?", s.now().Add(-s.retention())).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: prune webhook deliveries: %w", err)
	}
	return rowsAffected(res), nil
}

func (s *ClaimStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ClaimStore) retention() time.Duration {
	if s.Retention > 0 {
		return s.Retention
	}
	return inbound.DefaultClaimRetention
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return affected
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ inbound.ClaimStore = (*ClaimStore)(nil)
