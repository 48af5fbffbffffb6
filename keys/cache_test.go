package keys

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

func TestPublicKeyCacheKey(t *testing.T) {
	if got := PublicKeyCacheKey("serial-1"); got != "hooks::public_key::v1::serial-1" {
		t.Fatalf("unexpected cache key %q", got)
	}
	if got := PublicKeyCacheKey("a/b c"); got != "hooks::public_key::v1::a%2Fb%20c" {
		t.Fatalf("expected escaped serial, got %q", got)
	}
}

func TestCachingPublicKeyProvider_DelegatesOncePerSerial(t *testing.T) {
	delegate := &countingProvider{keys: map[string]string{"s1": "k1", "s2": "k2"}}
	provider, err := NewCachingPublicKeyProvider(delegate, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new caching provider: %v", err)
	}

	for i := 0; i < 5; i++ {
		key, err := provider.GetPublicKey(context.Background(), "s1")
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if key != "k1" {
			t.Fatalf("lookup %d: expected k1, got %q", i, key)
		}
	}
	if delegate.callsFor("s1") != 1 {
		t.Fatalf("expected one delegate call for s1, got %d", delegate.callsFor("s1"))
	}

	if key, _ := provider.GetPublicKey(context.Background(), "s2"); key != "k2" {
		t.Fatalf("expected k2, got %q", key)
	}
	if delegate.callsFor("s2") != 1 {
		t.Fatalf("expected one delegate call for s2, got %d", delegate.callsFor("s2"))
	}
}

func TestCachingPublicKeyProvider_DoesNotCacheErrors(t *testing.T) {
	delegate := &countingProvider{keys: map[string]string{}, err: errors.New("key service down")}
	provider, err := NewCachingPublicKeyProvider(delegate, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new caching provider: %v", err)
	}

	if _, err := provider.GetPublicKey(context.Background(), "s1"); err == nil {
		t.Fatalf("expected delegate error")
	}
	delegate.setErr(nil)
	delegate.setKey("s1", "k1")

	key, err := provider.GetPublicKey(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected recovery after delegate error, got %v", err)
	}
	if key != "k1" {
		t.Fatalf("expected k1, got %q", key)
	}
	if delegate.callsFor("s1") != 2 {
		t.Fatalf("expected the failed lookup to be retried, got %d calls", delegate.callsFor("s1"))
	}
}

func TestCachingPublicKeyProvider_CoalescesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	delegate := &countingProvider{keys: map[string]string{"s1": "k1"}, gate: release}
	provider, err := NewCachingPublicKeyProvider(delegate, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new caching provider: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := provider.GetPublicKey(context.Background(), "s1")
			if err != nil || key != "k1" {
				failures.Add(1)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("expected every caller to receive the key, %d failed", failures.Load())
	}
	if delegate.callsFor("s1") != 1 {
		t.Fatalf("expected concurrent misses to share one delegate call, got %d", delegate.callsFor("s1"))
	}
}

func TestCachingPublicKeyProvider_CancelledCallerDoesNotFailOthers(t *testing.T) {
	delegate := &contextProvider{started: make(chan struct{}), release: make(chan struct{}), key: "k1"}
	provider, err := NewCachingPublicKeyProvider(delegate, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new caching provider: %v", err)
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := provider.GetPublicKey(firstCtx, "s1")
		firstErr <- err
	}()
	<-delegate.started

	type outcome struct {
		key string
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		key, err := provider.GetPublicKey(context.Background(), "s1")
		second <- outcome{key: key, err: err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-firstErr; err == nil {
		t.Fatalf("expected cancelled caller to fail")
	}
	close(delegate.release)

	got := <-second
	if got.err != nil || got.key != "k1" {
		t.Fatalf("expected live caller to receive the key, got %q err=%v", got.key, got.err)
	}
	if delegate.calls.Load() != 1 {
		t.Fatalf("expected one shared delegate call, got %d", delegate.calls.Load())
	}
}

func TestCachingPublicKeyProvider_Forget(t *testing.T) {
	delegate := &countingProvider{keys: map[string]string{"s1": "k1"}}
	provider, err := NewInMemoryCachingPublicKeyProvider(delegate, time.Hour)
	if err != nil {
		t.Fatalf("new caching provider: %v", err)
	}
	_, _ = provider.GetPublicKey(context.Background(), "s1")
	if err := provider.Forget(context.Background(), "s1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	_, _ = provider.GetPublicKey(context.Background(), "s1")
	if delegate.callsFor("s1") != 2 {
		t.Fatalf("expected refetch after forget, got %d calls", delegate.callsFor("s1"))
	}
}

func TestNewCachingPublicKeyProvider_RequiresDependencies(t *testing.T) {
	if _, err := NewCachingPublicKeyProvider(nil, newTestCacheService(t)); err == nil {
		t.Fatalf("expected delegate to be required")
	}
	if _, err := NewCachingPublicKeyProvider(&countingProvider{}, nil); err == nil {
		t.Fatalf("expected cache service to be required")
	}
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

type countingProvider struct {
	mu    sync.Mutex
	keys  map[string]string
	err   error
	gate  chan struct{}
	calls map[string]int
}

func (p *countingProvider) GetPublicKey(_ context.Context, serial string) (string, error) {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[serial]++
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	return p.keys[serial], nil
}

func (p *countingProvider) callsFor(serial string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[serial]
}

func (p *countingProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *countingProvider) setKey(serial, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.keys == nil {
		p.keys = map[string]string{}
	}
	p.keys[serial] = key
}

// contextProvider blocks until released and fails if its context ends first.
type contextProvider struct {
	started chan struct{}
	release chan struct{}
	key     string
	calls   atomic.Int32
}

func (p *contextProvider) GetPublicKey(ctx context.Context, _ string) (string, error) {
	if p.calls.Add(1) == 1 {
		close(p.started)
	}
	select {
	case <-p.release:
		return p.key, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
