package webhooks

import (
	"context"
	"time"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/inbound"
)

const (
	MetricWebhookTotal    = "hooks.webhook.total"
	MetricWebhookDuration = "hooks.webhook.duration_ms"
)

type MetricsStep struct {
	recorder core.MetricsRecorder
	now      func() time.Time
}

func Metrics(recorder core.MetricsRecorder) *MetricsStep {
	return &MetricsStep{recorder: core.EnsureMetricsRecorder(recorder), now: time.Now}
}

func (s *MetricsStep) HandleWebhook(ctx context.Context, req core.WebhookRequest, next inbound.Next) error {
	started := s.now()
	err := next(ctx, req)
	tags := map[string]string{"status": metricStatus(err)}
	if code := core.TextCode(err); code != "" {
		tags["error_code"] = code
	}
	s.recorder.IncCounter(ctx, MetricWebhookTotal, 1, tags)
	s.recorder.ObserveHistogram(ctx, MetricWebhookDuration, float64(s.now().Sub(started).Milliseconds()), core.CloneTags(tags))
	return err
}

// metricStatus buckets an outcome as success, rejected (caller error) or
// failed.
func metricStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case core.IsRequestError(err):
		return "rejected"
	default:
		return "failed"
	}
}
