package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/inbound"
)

// DeliveryKeyFunc derives the replay key for a request.
type DeliveryKeyFunc func(req core.WebhookRequest) string

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialRetryPolicy doubles Initial per attempt up to Max. A zero
// Initial means the failed delivery may be retried immediately.
type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	if p.Initial <= 0 {
		return 0
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := p.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

type ReplayOptions struct {
	Lease       time.Duration
	RetryPolicy RetryPolicy
	KeyFunc     DeliveryKeyFunc
	Logger      core.Logger
	Now         func() time.Time
}

type ReplayGuardStep struct {
	store   inbound.ClaimStore
	lease   time.Duration
	retry   RetryPolicy
	keyFunc DeliveryKeyFunc
	logger  core.Logger
	now     func() time.Time
}

// ReplayGuard lets each delivery through once. Duplicates that are in flight
// or already completed end the chain without error. A downstream failure
// releases the claim so the platform's retry is accepted.
func ReplayGuard(store inbound.ClaimStore, opts ReplayOptions) *ReplayGuardStep {
	step := &ReplayGuardStep{
		store:   store,
		lease:   opts.Lease,
		retry:   opts.RetryPolicy,
		keyFunc: opts.KeyFunc,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if step.lease <= 0 {
		step.lease = inbound.DefaultClaimLease
	}
	if step.retry == nil {
		step.retry = ExponentialRetryPolicy{}
	}
	if step.keyFunc == nil {
		step.keyFunc = DefaultDeliveryKey
	}
	if step.logger == nil {
		step.logger = glog.Nop()
	}
	if step.now == nil {
		step.now = func() time.Time { return time.Now().UTC() }
	}
	return step
}

func (s *ReplayGuardStep) HandleWebhook(ctx context.Context, req core.WebhookRequest, next inbound.Next) error {
	if s.store == nil {
		return core.NewInternalError("webhooks: replay guard has no claim store", nil)
	}
	key := s.keyFunc(req)
	claimID, accepted, err := s.store.Claim(ctx, key, s.lease)
	if err != nil {
		return inbound.ClaimFailedError(err, "failed to claim webhook delivery", map[string]any{"delivery_key": key})
	}
	if !accepted {
		core.LogAt(ctx, s.logger, core.LevelInfo, "duplicate webhook delivery skipped", map[string]any{
			"delivery_key": key,
		})
		return nil
	}

	if err := next(ctx, req); err != nil {
		retryAt := s.now().Add(s.retry.NextDelay(1))
		if failErr := s.store.Fail(ctx, claimID, err, retryAt); failErr != nil {
			core.LogAt(ctx, s.logger, core.LevelWarn, "failed to release webhook delivery claim", core.MergeFields(
				map[string]any{"delivery_key": key},
				core.ErrorFields(failErr),
			))
		}
		return err
	}
	if err := s.store.Complete(ctx, claimID); err != nil {
		return inbound.ClaimFailedError(err, "failed to complete webhook delivery", map[string]any{"delivery_key": key})
	}
	return nil
}

// DefaultDeliveryKey uses the envelope request id and falls back to the
// SHA-256 of the raw body.
func DefaultDeliveryKey(req core.WebhookRequest) string {
	var envelope struct {
		Request struct {
			ID string `json:"id"`
		} `json:"request"`
	}
	if err := json.Unmarshal([]byte(req.RawBody), &envelope); err == nil {
		if id := strings.TrimSpace(envelope.Request.ID); id != "" {
			return "request:" + id
		}
	}
	sum := sha256.Sum256([]byte(req.RawBody))
	return "body:" + hex.EncodeToString(sum[:])
}
