package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/goliatone/go-marketplace-hooks/adapters/gologger"
	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/observability"
	"github.com/goliatone/go-marketplace-hooks/pipeline"
	"github.com/goliatone/go-marketplace-hooks/query"
	"github.com/goliatone/go-marketplace-hooks/transport"
	"github.com/goliatone/go-marketplace-hooks/webhooks"
)

type app struct {
	cfg      Config
	hooks    core.Config
	logger   core.Logger
	engine   *gin.Engine
	registry *prometheus.Registry
	closers  []func() error
}

func newApp(ctx context.Context, cfg Config, logger core.Logger) (*app, error) {
	hooksCfg, err := cfg.HooksConfig(ctx)
	if err != nil {
		return nil, err
	}
	secrets, err := secretProvider(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := openStores(ctx, cfg, secrets)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		hooks:    hooksCfg,
		logger:   logger,
		registry: observability.NewRegistry(),
		closers:  []func() error{backend.close},
	}

	opts := []pipeline.Option{
		pipeline.WithConfig(hooksCfg),
		pipeline.WithLogger(gologger.Component(nil, logger, "pipeline")),
		pipeline.WithMetricsRecorder(observability.NewPrometheusRecorder(a.registry)),
		pipeline.WithTracer(observability.NewTracer()),
	}
	if hooksCfg.Replay.Enabled {
		opts = append(opts, pipeline.WithReplayProtection(backend.claims))
	}
	if cfg.BurstWindow > 0 {
		opts = append(opts, pipeline.WithBurstControl(webhooks.NewBurstController(webhooks.BurstOptions{
			Mode:   webhooks.BurstModeCoalesce,
			Window: cfg.BurstWindow,
		})))
	}
	if url := strings.TrimSpace(cfg.RedisURL); url != "" {
		redisOpts, err := goredis.ParseURL(url)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("hooksd: REDIS_URL: %w", err)
		}
		client := goredis.NewClient(redisOpts)
		a.closers = append(a.closers, client.Close)
		opts = append(opts, pipeline.WithRedisKeyCache(client))
	}

	chain, err := pipeline.New(backend.extensions, hooksCfg.ExtensionID, opts...).BuildCombined()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.engine = a.routes(chain, backend.extensions)
	return a, nil
}

func (a *app) routes(dispatcher transport.Dispatcher, reader query.ExtensionReader) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.POST(a.cfg.WebhookPath, transport.GinHandler(dispatcher,
		transport.WithLogger(gologger.Component(nil, a.logger, "transport")),
		transport.WithMaxBodyBytes(a.cfg.MaxBodyBytes),
	))
	engine.GET(a.cfg.MetricsPath, gin.WrapH(observability.MetricsHandler(a.registry)))
	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	if a.cfg.AdminRoutes {
		a.extensionRoutes(engine, reader)
	}
	return engine
}

// extensionRoutes exposes stored extension state without the secret.
func (a *app) extensionRoutes(engine *gin.Engine, reader query.ExtensionReader) {
	getExtension := query.NewGetExtensionQuery(reader)
	listExtensions := query.NewListExtensionsQuery(reader)
	engine.GET("/extensions/:id", func(c *gin.Context) {
		instance, err := getExtension.Query(c.Request.Context(), query.GetExtensionMessage{ExtensionInstanceID: c.Param("id")})
		if err != nil {
			a.writeQueryError(c, err)
			return
		}
		c.JSON(http.StatusOK, newExtensionView(instance))
	})
	engine.GET("/extensions", func(c *gin.Context) {
		instances, err := listExtensions.Query(c.Request.Context(), query.ListExtensionsMessage{ContextID: c.Query("context_id")})
		if err != nil {
			a.writeQueryError(c, err)
			return
		}
		views := make([]extensionView, 0, len(instances))
		for _, instance := range instances {
			views = append(views, newExtensionView(instance))
		}
		c.JSON(http.StatusOK, views)
	})
}

func (a *app) writeQueryError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.HasTextCode(err, core.ErrorExtensionNotFound):
		status = http.StatusNotFound
	case core.HasTextCode(err, core.ErrorBadInput):
		status = http.StatusBadRequest
	default:
		core.LogAt(c.Request.Context(), a.logger, core.LevelError, "extension query failed", core.ErrorFields(err))
	}
	message := core.ErrorMessage(err)
	if status == http.StatusInternalServerError {
		message = transport.UnknownErrorMessage
	}
	c.JSON(status, gin.H{"error": message, "code": core.TextCode(err)})
}

// extensionView is the read model served over HTTP. The secret is never
// exposed.
type extensionView struct {
	ID              string   `json:"id"`
	ContextID       string   `json:"contextId"`
	ContextKind     string   `json:"contextKind"`
	ConsentedScopes []string `json:"consentedScopes"`
	Enabled         bool     `json:"enabled"`
	VariantKey      string   `json:"variantKey,omitempty"`
	HasSecret       bool     `json:"hasSecret"`
}

func newExtensionView(instance core.ExtensionInstance) extensionView {
	scopes := instance.ConsentedScopes
	if scopes == nil {
		scopes = []string{}
	}
	return extensionView{
		ID:              instance.ID,
		ContextID:       instance.ContextID,
		ContextKind:     string(instance.ContextKind),
		ConsentedScopes: scopes,
		Enabled:         instance.Enabled,
		VariantKey:      instance.VariantKey,
		HasSecret:       instance.Secret != "",
	}
}

func (a *app) Handler() http.Handler {
	return a.engine
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if a.closers[i] == nil {
			continue
		}
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
