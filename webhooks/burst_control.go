package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/events"
	"github.com/goliatone/go-marketplace-hooks/inbound"
)

type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
)

type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

type BurstController interface {
	Allow(ctx context.Context, req core.WebhookRequest) (BurstDecision, error)
}

// BurstKeyExtractor returns false when a request should never be coalesced.
type BurstKeyExtractor func(req core.WebhookRequest) (string, bool)

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	ExtractKey BurstKeyExtractor
	Now        func() time.Time
}

// DefaultBurstController remembers keys in memory for one process. It is a
// cheap front for the claim store, not a replacement.
type DefaultBurstController struct {
	mode       BurstMode
	window     time.Duration
	maxEntries int
	extractKey BurstKeyExtractor
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewBurstController(opts BurstOptions) *DefaultBurstController {
	window := opts.Window
	if window <= 0 {
		window = 2 * time.Second
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	extractKey := opts.ExtractKey
	if extractKey == nil {
		extractKey = DefaultBurstKey
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &DefaultBurstController{
		mode:       normalizeBurstMode(opts.Mode),
		window:     window,
		maxEntries: maxEntries,
		extractKey: extractKey,
		now:        now,
		entries:    map[string]time.Time{},
	}
}

func (c *DefaultBurstController) Allow(_ context.Context, req core.WebhookRequest) (BurstDecision, error) {
	if c == nil || c.mode == BurstModeNone {
		return BurstDecision{Allow: true}, nil
	}
	key, ok := c.extractKey(req)
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return BurstDecision{Allow: true}, nil
	}

	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	lastSeen, exists := c.entries[key]
	c.entries[key] = now
	c.cleanup(now)
	if !exists || now.Sub(lastSeen) >= c.window {
		return BurstDecision{Allow: true}, nil
	}
	return BurstDecision{Allow: false, Metadata: map[string]any{
		"burst_mode":      string(c.mode),
		"burst_key":       key,
		"burst_window_ms": c.window.Milliseconds(),
		"coalesced":       true,
	}}, nil
}

func (c *DefaultBurstController) cleanup(now time.Time) {
	if len(c.entries) <= c.maxEntries {
		for key, seenAt := range c.entries {
			if now.Sub(seenAt) > c.window*4 {
				delete(c.entries, key)
			}
		}
		return
	}
	for key, seenAt := range c.entries {
		if now.Sub(seenAt) > c.window {
			delete(c.entries, key)
		}
		if len(c.entries) <= c.maxEntries {
			break
		}
	}
}

// DefaultBurstKey keys a delivery by kind, instance id and body digest, so
// only byte-identical redeliveries coalesce.
func DefaultBurstKey(req core.WebhookRequest) (string, bool) {
	envelope, err := events.DecodeEnvelope(req.RawBody)
	if err != nil || envelope.ID == "" {
		return "", false
	}
	sum := sha256.Sum256([]byte(req.RawBody))
	return strings.ToLower(string(envelope.Kind)) + ":" + envelope.ID + ":" + hex.EncodeToString(sum[:8]), true
}

func normalizeBurstMode(mode BurstMode) BurstMode {
	switch strings.ToLower(strings.TrimSpace(string(mode))) {
	case string(BurstModeCoalesce):
		return BurstModeCoalesce
	default:
		return BurstModeNone
	}
}

type BurstStep struct {
	controller BurstController
	logger     core.Logger
}

// BurstControl ends the chain without error for deliveries the controller
// coalesces. Controller errors are returned unchanged.
func BurstControl(controller BurstController, logger core.Logger) *BurstStep {
	if logger == nil {
		logger = glog.Nop()
	}
	return &BurstStep{controller: controller, logger: logger}
}

func (s *BurstStep) HandleWebhook(ctx context.Context, req core.WebhookRequest, next inbound.Next) error {
	if s.controller == nil {
		return next(ctx, req)
	}
	decision, err := s.controller.Allow(ctx, req)
	if err != nil {
		return err
	}
	if !decision.Allow {
		core.LogAt(ctx, s.logger, core.LevelInfo, "webhook delivery coalesced", decision.Metadata)
		return nil
	}
	return next(ctx, req)
}

var _ BurstController = (*DefaultBurstController)(nil)
