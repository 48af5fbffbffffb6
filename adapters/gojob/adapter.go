// Package gojob moves webhook dispatch onto a go-job queue. Enqueuer accepts
// requests on the HTTP path and Processor runs them through a chain later.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/webhooks"
)

const (
	JobIDWebhookDispatch = "hooks.webhook.dispatch"

	paramRawBody            = "raw_body"
	paramSignature          = "signature"
	paramSignatureSerial    = "signature_serial"
	paramSignatureAlgorithm = "signature_algorithm"
)

// Dispatcher runs one webhook request to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, req core.WebhookRequest) error
}

// RetryPolicy bounds queue retries. It satisfies go-job's worker.RetryPolicy
// so the same rules apply when webhook jobs run on a go-job worker.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
	Backoff         webhooks.RetryPolicy
}

// Decide dead-letters request errors, which a retry cannot fix, and retries
// everything else with backoff until MaxAttempts.
func (p RetryPolicy) Decide(attempt int, err error) queue.NackOptions {
	reason := core.ErrorMessage(err)
	if core.IsRequestError(err) || core.HasTextCode(err, core.ErrorBadInput) {
		return queue.NackOptions{Disposition: queue.NackDispositionDeadLetter, Reason: reason}
	}
	return p.NormalizeAttempt(queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       p.delay(attempt),
		Reason:      reason,
	}, attempt)
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry || out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	return out
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff.NextDelay(attempt)
}

// ToExecutionMessage wraps a webhook request in a go-job message. The
// idempotency key is the delivery key used by the replay guard.
func ToExecutionMessage(req core.WebhookRequest) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID: JobIDWebhookDispatch,
		Parameters: map[string]any{
			paramRawBody:            req.RawBody,
			paramSignature:          req.Signature,
			paramSignatureSerial:    req.SignatureSerial,
			paramSignatureAlgorithm: req.SignatureAlgorithm,
		},
		IdempotencyKey: webhooks.DefaultDeliveryKey(req),
	}
}

// FromExecutionMessage restores the webhook request carried by msg.
func FromExecutionMessage(msg *job.ExecutionMessage) (core.WebhookRequest, error) {
	if msg == nil {
		return core.WebhookRequest{}, core.NewBadInputError("gojob: execution message is required", nil)
	}
	if jobID := strings.TrimSpace(msg.JobID); jobID != JobIDWebhookDispatch {
		return core.WebhookRequest{}, core.NewBadInputError("gojob: unexpected job id", map[string]any{"job_id": jobID})
	}
	body, ok := msg.Parameters[paramRawBody].(string)
	if !ok {
		return core.WebhookRequest{}, core.NewBadInputError("gojob: message has no raw body", map[string]any{"job_id": msg.JobID})
	}
	return core.WebhookRequest{
		RawBody:            body,
		Signature:          stringParam(msg.Parameters, paramSignature),
		SignatureSerial:    stringParam(msg.Parameters, paramSignatureSerial),
		SignatureAlgorithm: stringParam(msg.Parameters, paramSignatureAlgorithm),
	}, nil
}

// Enqueuer is a Dispatcher that only queues the request.
type Enqueuer struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuer(enqueuer queue.Enqueuer) *Enqueuer {
	return &Enqueuer{enqueuer: enqueuer}
}

func (e *Enqueuer) Dispatch(ctx context.Context, req core.WebhookRequest) error {
	if e == nil || e.enqueuer == nil {
		return core.NewInternalError("gojob: enqueuer is not configured", nil)
	}
	if _, err := e.enqueuer.Enqueue(ctx, ToExecutionMessage(req)); err != nil {
		return core.NewInternalError("gojob: failed to enqueue webhook", map[string]any{"error": err.Error()})
	}
	return nil
}

// Processor pulls queued webhooks and runs them through a dispatcher.
type Processor struct {
	dequeuer   queue.Dequeuer
	dispatcher Dispatcher
	policy     RetryPolicy
	logger     core.Logger
}

func NewProcessor(dequeuer queue.Dequeuer, dispatcher Dispatcher, policy RetryPolicy, logger core.Logger) *Processor {
	if logger == nil {
		logger = glog.Nop()
	}
	return &Processor{dequeuer: dequeuer, dispatcher: dispatcher, policy: policy, logger: logger}
}

// ProcessNext handles a single delivery and nacks failures with the
// disposition RetryPolicy.Decide picks. The returned error is the dispatch
// error, if any.
func (p *Processor) ProcessNext(ctx context.Context) error {
	_, err := p.processNext(ctx)
	return err
}

// processNext reports whether a delivery was taken off the queue.
func (p *Processor) processNext(ctx context.Context) (bool, error) {
	if p == nil || p.dequeuer == nil || p.dispatcher == nil {
		return false, fmt.Errorf("gojob: processor is not configured")
	}
	delivery, err := p.dequeuer.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	attempt := deliveryAttempt(delivery)

	req, err := FromExecutionMessage(delivery.Message())
	if err == nil {
		err = p.dispatcher.Dispatch(ctx, req)
	}
	if err == nil {
		return true, delivery.Ack(ctx)
	}

	normalized := p.policy.Decide(attempt, err)
	core.LogAt(ctx, p.logger, core.LevelWarn, "queued webhook failed", core.MergeFields(
		map[string]any{
			"attempt":     attempt,
			"disposition": string(normalized.Disposition),
			"delay":       normalized.Delay.String(),
		},
		core.ErrorFields(err),
	))
	if nackErr := delivery.Nack(ctx, normalized); nackErr != nil {
		return true, nackErr
	}
	return true, err
}

// Run processes deliveries until ctx is done. Dispatch failures are already
// reported through the queue; the loop waits idle only when nothing was
// dequeued.
func (p *Processor) Run(ctx context.Context, idle time.Duration) error {
	if idle <= 0 {
		idle = time.Second
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		dequeued, err := p.processNext(ctx)
		if dequeued {
			continue
		}
		if err != nil {
			core.LogAt(ctx, p.logger, core.LevelDebug, "webhook queue idle", core.ErrorFields(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idle):
		}
	}
}

// LoggingHook reports go-job worker events for webhook jobs.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	if logger == nil {
		logger = glog.Nop()
	}
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, core.LevelDebug, "webhook job started", event)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, core.LevelInfo, "webhook job succeeded", event)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, core.LevelError, "webhook job failed", event)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, core.LevelWarn, "webhook job retrying", event)
}

func (h *LoggingHook) log(ctx context.Context, level, msg string, event worker.Event) {
	if h == nil {
		return
	}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := map[string]any{
		"attempt":  event.Attempt,
		"delay":    event.Delay.String(),
		"duration": event.Duration.String(),
	}
	if message != nil {
		fields["job_id"] = message.JobID
		fields["idempotency_key"] = message.IdempotencyKey
	}
	core.LogAt(ctx, h.logger, level, msg, core.MergeFields(fields, core.ErrorFields(event.Err)))
}

// deliveryAttempt reads the attempt counter the go-job redis and postgres
// deliveries expose.
func deliveryAttempt(delivery queue.Delivery) int {
	if counted, ok := delivery.(interface{ Attempts() int }); ok && counted.Attempts() > 0 {
		return counted.Attempts()
	}
	return 1
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return value
}

var (
	_ Dispatcher         = (*Enqueuer)(nil)
	_ worker.Hook        = (*LoggingHook)(nil)
	_ worker.RetryPolicy = RetryPolicy{}
)
