package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/events"
	"github.com/goliatone/go-marketplace-hooks/hookstest"
	"github.com/goliatone/go-marketplace-hooks/inbound"
	"github.com/goliatone/go-marketplace-hooks/webhooks"
)

func TestBuildCombined_PersistsSignedWebhook(t *testing.T) {
	pair := hookstest.NewKeyPair()
	storage := &hookstest.RecordingStorage{}
	chain, err := New(storage, hookstest.ExtensionID,
		WithoutLogging(),
		WithPublicKeyProvider(staticKeys(pair)),
	).BuildCombined()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	body := hookstest.Body("ExtensionAddedToContext", nil)
	if err := chain.Dispatch(context.Background(), pair.SignedRequest(body)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	calls := storage.Calls()
	if len(calls) != 1 || calls[0].Op != "upsert" {
		t.Fatalf("expected one upsert, got %+v", calls)
	}
	added := calls[0].Added
	if added.ExtensionInstanceID != "e1" || added.ContextID != "c1" || added.Secret != "s" {
		t.Fatalf("unexpected upsert %+v", added)
	}
	if !reflect.DeepEqual(added.ConsentedScopes, []string{"a"}) {
		t.Fatalf("unexpected scopes %v", added.ConsentedScopes)
	}
}

func TestBuildCombined_StepOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	mark := func(name string) inbound.Handler {
		return inbound.HandlerFunc(func(ctx context.Context, req core.WebhookRequest, next inbound.Next) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return next(ctx, req)
		})
	}
	storage := &orderedStorage{mark: func() {
		mu.Lock()
		order = append(order, "persist")
		mu.Unlock()
	}}
	logger := hookstest.NewCaptureLogger()
	chain, err := New(storage, hookstest.ExtensionID,
		WithLogger(logger),
		WithoutSignatureVerification(),
		WithPrefix(mark("prefix-1"), mark("prefix-2")),
		WithSuffix(mark("suffix")),
	).BuildCombined()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := chain.Dispatch(context.Background(), core.WebhookRequest{
		RawBody: hookstest.Body("SecretRotated", nil),
	}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	want := []string{"prefix-1", "prefix-2", "persist", "suffix"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	if _, ok := logger.Find("debug", "handling webhook"); !ok {
		t.Fatalf("expected debug request log, got %+v", logger.Records())
	}
}

func TestBuildCombined_RejectsBadSignatureBeforePersistence(t *testing.T) {
	pair := hookstest.NewKeyPair()
	storage := &hookstest.RecordingStorage{}
	chain, err := New(storage, hookstest.ExtensionID, WithPublicKeyProvider(staticKeys(pair))).BuildCombined()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	req := pair.SignedRequest(hookstest.Body("InstanceUpdated", nil))
	req = req.WithRawBody(strings.Replace(req.RawBody, `"c1"`, `"c2"`, 1))

	err = chain.Dispatch(context.Background(), req)
	if !core.HasTextCode(err, core.ErrorInvalidSignature) {
		t.Fatalf("expected INVALID_SIGNATURE, got %v", err)
	}
	if len(storage.Calls()) != 0 {
		t.Fatalf("expected no storage calls")
	}
}

func TestBuildCombined_RejectsForeignExtension(t *testing.T) {
	storage := &hookstest.RecordingStorage{}
	chain, err := New(storage, "another-extension", WithoutLogging(), WithoutSignatureVerification()).BuildCombined()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	err = chain.Dispatch(context.Background(), core.WebhookRequest{RawBody: hookstest.Body("InstanceUpdated", nil)})
	if !core.HasTextCode(err, core.ErrorInvalidExtensionID) {
		t.Fatalf("expected INVALID_EXTENSION_ID, got %v", err)
	}
}

func TestBuild_ValidatesRequiredInputs(t *testing.T) {
	if _, err := New(nil, hookstest.ExtensionID).BuildCombined(); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input for nil storage, got %v", err)
	}
	if _, err := New(&hookstest.RecordingStorage{}, "  ").BuildSeparate(); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input for empty extension id, got %v", err)
	}
}

func TestBuilder_WithDoesNotAffectBuiltChainsOrReceiver(t *testing.T) {
	storage := &hookstest.RecordingStorage{}
	base := New(storage, hookstest.ExtensionID, WithoutLogging(), WithoutSignatureVerification())
	first, err := base.BuildCombined()
	if err != nil {
		t.Fatalf("build first: %v", err)
	}
	extended := base.With(WithSuffix(inbound.HandlerFunc(passThrough)), WithPrefix(inbound.HandlerFunc(passThrough)))
	second, err := extended.BuildCombined()
	if err != nil {
		t.Fatalf("build second: %v", err)
	}
	again, err := base.BuildCombined()
	if err != nil {
		t.Fatalf("build again: %v", err)
	}
	if first.Len() != again.Len() {
		t.Fatalf("expected receiver unchanged, got %d and %d steps", first.Len(), again.Len())
	}
	if second.Len() != first.Len()+2 {
		t.Fatalf("expected two extra steps, got %d vs %d", second.Len(), first.Len())
	}
}

func TestBuildSeparate_RoutesByKindAndSharesKeyCache(t *testing.T) {
	pair := hookstest.NewKeyPair()
	provider := staticKeys(pair)
	storage := &hookstest.RecordingStorage{}
	chains, err := New(storage, hookstest.ExtensionID, WithoutLogging(), WithPublicKeyProvider(provider)).BuildSeparate()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(chains) != len(events.Kinds()) {
		t.Fatalf("expected a chain per kind, got %d", len(chains))
	}
	for _, kind := range events.Kinds() {
		if _, ok := chains.For(kind); !ok {
			t.Fatalf("missing chain for %s", kind)
		}
	}

	ctx := context.Background()
	for _, kind := range []string{"SecretRotated", "InstanceRemovedFromContext"} {
		if err := chains.Dispatch(ctx, pair.SignedRequest(hookstest.Body(kind, nil))); err != nil {
			t.Fatalf("dispatch %s: %v", kind, err)
		}
	}
	calls := storage.Calls()
	if len(calls) != 2 || calls[0].Op != "rotate" || calls[1].Op != "remove" {
		t.Fatalf("unexpected storage calls %+v", calls)
	}
	if provider.Calls() != 1 {
		t.Fatalf("expected forks to share one key cache, provider calls=%d", provider.Calls())
	}
}

func TestBuildSeparate_KindChainRejectsOtherKinds(t *testing.T) {
	storage := &hookstest.RecordingStorage{}
	chains, err := New(storage, hookstest.ExtensionID, WithoutLogging(), WithoutSignatureVerification()).BuildSeparate()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	chain, _ := chains.For(events.KindSecretRotated)
	err = chain.Dispatch(context.Background(), core.WebhookRequest{RawBody: hookstest.Body("InstanceUpdated", nil)})
	if !core.HasTextCode(err, core.ErrorInvalidBody) {
		t.Fatalf("expected INVALID_BODY, got %v", err)
	}
	if err := chains.Dispatch(context.Background(), core.WebhookRequest{RawBody: "{"}); !core.HasTextCode(err, core.ErrorInvalidBody) {
		t.Fatalf("expected INVALID_BODY for malformed body, got %v", err)
	}
	if len(storage.Calls()) != 0 {
		t.Fatalf("expected no storage calls")
	}
}

func TestBuildCombined_ReplayProtectionSkipsDuplicates(t *testing.T) {
	storage := &hookstest.RecordingStorage{}
	chain, err := New(storage, hookstest.ExtensionID,
		WithoutLogging(),
		WithoutSignatureVerification(),
		WithReplayProtection(nil),
	).BuildCombined()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	req := core.WebhookRequest{RawBody: hookstest.Body("InstanceUpdated", nil)}
	for i := 0; i < 3; i++ {
		if err := chain.Dispatch(context.Background(), req); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if len(storage.Calls()) != 1 {
		t.Fatalf("expected one persisted delivery, got %d", len(storage.Calls()))
	}
}

func TestBuildCombined_BurstControlCoalescesRedeliveries(t *testing.T) {
	storage := &hookstest.RecordingStorage{}
	chain, err := New(storage, hookstest.ExtensionID,
		WithoutLogging(),
		WithoutSignatureVerification(),
		WithBurstControl(webhooks.NewBurstController(webhooks.BurstOptions{Mode: webhooks.BurstModeCoalesce, Window: time.Minute})),
	).BuildCombined()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	req := core.WebhookRequest{RawBody: hookstest.Body("SecretRotated", nil)}
	for i := 0; i < 2; i++ {
		if err := chain.Dispatch(context.Background(), req); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if len(storage.Calls()) != 1 {
		t.Fatalf("expected one persisted delivery, got %d", len(storage.Calls()))
	}
}

func TestWithConfig_AppliesSections(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.ExtensionID = hookstest.ExtensionID
	cfg.Verification.Disabled = true
	cfg.Logging.Disabled = true

	storage := &hookstest.RecordingStorage{}
	logger := hookstest.NewCaptureLogger()
	chain, err := New(storage, "", WithLogger(logger), WithConfig(cfg)).BuildCombined()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := chain.Dispatch(context.Background(), core.WebhookRequest{RawBody: hookstest.Body("InstanceUpdated", nil)}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(storage.Calls()) != 1 {
		t.Fatalf("expected unsigned request to persist with verification disabled")
	}
	if len(logger.Records()) != 0 {
		t.Fatalf("expected logging disabled, got %+v", logger.Records())
	}
}

func TestWithLogger_KeepsConfigLoggingDisabled(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Logging.Disabled = true

	pair := hookstest.NewKeyPair()
	storage := &hookstest.RecordingStorage{}
	logger := hookstest.NewCaptureLogger()
	chain, err := New(storage, hookstest.ExtensionID,
		WithConfig(cfg),
		WithLogger(logger),
		WithPublicKeyProvider(&hookstest.StaticKeys{Keys: map[string]string{hookstest.Serial: pair.PublicBase64()}}),
	).BuildCombined()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := chain.Dispatch(context.Background(), pair.SignedRequest(hookstest.Body("InstanceUpdated", nil))); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(storage.Calls()) != 1 {
		t.Fatalf("expected signed request to persist, got %+v", storage.Calls())
	}
	if records := logger.Records(); len(records) != 0 {
		t.Fatalf("expected logging to stay disabled, got %+v", records)
	}
}

func TestBuildCombined_FetchesKeysFromKeyService(t *testing.T) {
	pair := hookstest.NewKeyPair()
	var hits int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		if r.URL.Path != "/v2/webhook-public-keys/"+hookstest.Serial {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"serial": hookstest.Serial, "key": pair.PublicBase64()})
	}))
	defer server.Close()

	storage := &hookstest.RecordingStorage{}
	chain, err := New(storage, hookstest.ExtensionID,
		WithoutLogging(),
		WithKeyServiceURL(server.URL),
		WithHTTPClient(server.Client()),
	).BuildCombined()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := chain.Dispatch(context.Background(), pair.SignedRequest(hookstest.Body("SecretRotated", nil))); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if hits != 1 {
		t.Fatalf("expected one key service request, got %d", hits)
	}

	unknown := pair.SignedRequest(hookstest.Body("SecretRotated", nil))
	unknown.SignatureSerial = "unknown"
	if err := chain.Dispatch(context.Background(), unknown); !core.HasTextCode(err, core.ErrorFailedToFetchPublicKey) {
		t.Fatalf("expected FAILED_TO_FETCH_PUBLIC_KEY, got %v", err)
	}
}

func TestBuildCombined_MetricsAndVerifierOverride(t *testing.T) {
	recorder := &hookstest.CaptureMetricsRecorder{}
	storage := &hookstest.RecordingStorage{}
	chain, err := New(storage, hookstest.ExtensionID,
		WithoutLogging(),
		WithVerifier(rejectAll{}),
		WithMetricsRecorder(recorder),
	).BuildCombined()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	err = chain.Dispatch(context.Background(), core.WebhookRequest{RawBody: hookstest.Body("SecretRotated", nil)})
	if !core.HasTextCode(err, core.ErrorInvalidSignature) {
		t.Fatalf("expected INVALID_SIGNATURE from override verifier, got %v", err)
	}
	if !recorder.HasCounter("hooks.webhook.total", "rejected") {
		t.Fatalf("expected rejected counter")
	}
}

func staticKeys(pair hookstest.KeyPair) *hookstest.StaticKeys {
	return &hookstest.StaticKeys{Keys: map[string]string{hookstest.Serial: pair.PublicBase64()}}
}

func passThrough(ctx context.Context, req core.WebhookRequest, next inbound.Next) error {
	return next(ctx, req)
}

type orderedStorage struct {
	hookstest.RecordingStorage
	mark func()
}

func (s *orderedStorage) RotateSecret(ctx context.Context, id string, secret string) error {
	s.mark()
	return s.RecordingStorage.RotateSecret(ctx, id, secret)
}

type rejectAll struct{}

func (rejectAll) Verify(context.Context, core.WebhookRequest) (bool, error) {
	return false, nil
}
