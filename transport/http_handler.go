package transport

import (
	"context"
	"net/http"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-marketplace-hooks/core"
)

// Dispatcher runs a webhook request through a chain. *inbound.Chain and
// pipeline.Chains both satisfy it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req core.WebhookRequest) error
}

type DispatcherFunc func(ctx context.Context, req core.WebhookRequest) error

func (fn DispatcherFunc) Dispatch(ctx context.Context, req core.WebhookRequest) error {
	return fn(ctx, req)
}

type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	logger       core.Logger
	maxBodyBytes int64
}

func WithLogger(logger core.Logger) HandlerOption {
	return func(c *handlerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMaxBodyBytes(limit int64) HandlerOption {
	return func(c *handlerConfig) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

func newHandlerConfig(opts []HandlerOption) handlerConfig {
	cfg := handlerConfig{logger: glog.Nop(), maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// serve reads, dispatches and classifies one request. It is shared by the
// net/http and gin adapters.
func (c handlerConfig) serve(r *http.Request, dispatcher Dispatcher) Outcome {
	ctx := r.Context()
	req, err := RequestFromHTTP(r, c.maxBodyBytes)
	if err == nil {
		if dispatcher == nil {
			err = core.NewInternalError("transport: dispatcher is required", nil)
		} else {
			err = dispatcher.Dispatch(ctx, req)
		}
	}
	outcome := Classify(err)
	if err != nil && !outcome.Classified {
		core.LogAt(ctx, c.logger, core.LevelError, "Unknown error occurred", core.ErrorFields(err))
	}
	return outcome
}

// NewHTTPHandler serves POST requests through dispatcher and answers with a
// plain text outcome.
func NewHTTPHandler(dispatcher Dispatcher, opts ...HandlerOption) http.Handler {
	cfg := newHandlerConfig(opts)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		outcome := cfg.serve(r, dispatcher)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(outcome.Status)
		_, _ = w.Write([]byte(outcome.Message))
	})
}
