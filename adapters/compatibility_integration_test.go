package adapters_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/adapters/gocommand"
	"github.com/goliatone/go-marketplace-hooks/adapters/gojob"
	"github.com/goliatone/go-marketplace-hooks/adapters/gologger"
	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/hookstest"
	"github.com/goliatone/go-marketplace-hooks/pipeline"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	jobs, jobProvider, jobLogger := gologger.ResolveForJob(provider, nil)
	if jobs == nil || jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterCommand(command.CommandFunc[compatMessage](func(context.Context, compatMessage) error {
		return nil
	})); err != nil {
		t.Fatalf("register command: %v", err)
	}
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get("hooks.compat.command"); !ok {
		t.Fatalf("expected command resolver hook to mirror command into go-job queue registry")
	}
}

func TestRuntimeCompatibility_QueuedWebhookPersistsThroughCommands(t *testing.T) {
	ctx := context.Background()
	recording := &hookstest.RecordingStorage{}
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := gocommand.RegisterStorageCommands(adapter, recording)
	if err != nil {
		t.Fatalf("register storage commands: %v", err)
	}
	defer subscriptions.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}

	keys := hookstest.NewKeyPair()
	chain, err := pipeline.New(gocommand.DispatchStorage{}, hookstest.ExtensionID,
		pipeline.WithPublicKeyProvider(&hookstest.StaticKeys{Keys: map[string]string{hookstest.Serial: keys.PublicBase64()}}),
		pipeline.WithLogger(gologger.Component(nil, &compatLogger{}, "pipeline")),
	).BuildCombined()
	if err != nil {
		t.Fatalf("build chain: %v", err)
	}

	memoryQueue := &compatQueue{}
	body := hookstest.Body("SecretRotated", map[string]any{"secret": "rotated"})
	if err := gojob.NewEnqueuer(memoryQueue).Dispatch(ctx, keys.SignedRequest(body)); err != nil {
		t.Fatalf("enqueue webhook: %v", err)
	}
	if len(recording.Calls()) != 0 {
		t.Fatalf("expected nothing persisted before the queue is processed")
	}

	processor := gojob.NewProcessor(memoryQueue, chain, gojob.RetryPolicy{MaxAttempts: 3}, nil)
	if err := processor.ProcessNext(ctx); err != nil {
		t.Fatalf("process queued webhook: %v", err)
	}

	calls := recording.Calls()
	if len(calls) != 1 || calls[0].Op != "rotate" || calls[0].Secret != "rotated" {
		t.Fatalf("expected rotate through go-command, got %+v", calls)
	}
	if len(memoryQueue.acked) != 1 {
		t.Fatalf("expected queued delivery to be acked")
	}
}

func TestRuntimeCompatibility_QueuedForgeryIsDeadLettered(t *testing.T) {
	ctx := context.Background()
	recording := &hookstest.RecordingStorage{}
	keys := hookstest.NewKeyPair()
	chain, err := pipeline.New(recording, hookstest.ExtensionID,
		pipeline.WithPublicKeyProvider(&hookstest.StaticKeys{Keys: map[string]string{hookstest.Serial: keys.PublicBase64()}}),
		pipeline.WithoutLogging(),
	).BuildCombined()
	if err != nil {
		t.Fatalf("build chain: %v", err)
	}

	memoryQueue := &compatQueue{}
	forged := keys.SignedRequest(hookstest.Body("SecretRotated", nil))
	forged.RawBody = hookstest.Body("SecretRotated", map[string]any{"secret": "stolen"})
	if err := gojob.NewEnqueuer(memoryQueue).Dispatch(ctx, forged); err != nil {
		t.Fatalf("enqueue webhook: %v", err)
	}

	err = gojob.NewProcessor(memoryQueue, chain, gojob.RetryPolicy{}, nil).ProcessNext(ctx)
	if !core.HasTextCode(err, core.ErrorInvalidSignature) {
		t.Fatalf("expected INVALID_SIGNATURE, got %v", err)
	}
	if len(memoryQueue.deadLettered) != 1 {
		t.Fatalf("expected forged webhook to be dead-lettered")
	}
	if len(recording.Calls()) != 0 {
		t.Fatalf("expected forged webhook to stay unpersisted")
	}
}

type compatMessage struct{}

func (compatMessage) Type() string { return "hooks.compat.command" }

// compatQueue is a single-consumer FIFO over go-job messages.
type compatQueue struct {
	pending      []*job.ExecutionMessage
	acked        []*job.ExecutionMessage
	deadLettered []*job.ExecutionMessage
}

func (q *compatQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	q.pending = append(q.pending, msg)
	return queue.EnqueueReceipt{DispatchID: msg.IdempotencyKey}, nil
}

func (q *compatQueue) Dequeue(context.Context) (queue.Delivery, error) {
	if len(q.pending) == 0 {
		return nil, nil
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return &compatDelivery{queue: q, msg: msg}, nil
}

type compatDelivery struct {
	queue *compatQueue
	msg   *job.ExecutionMessage
}

func (d *compatDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *compatDelivery) Ack(context.Context) error {
	d.queue.acked = append(d.queue.acked, d.msg)
	return nil
}

func (d *compatDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	switch opts.Disposition {
	case queue.NackDispositionDeadLetter:
		d.queue.deadLettered = append(d.queue.deadLettered, d.msg)
	case queue.NackDispositionRetry:
		d.queue.pending = append(d.queue.pending, d.msg)
	}
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
