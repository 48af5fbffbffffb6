package inbound

import (
	"context"
	"reflect"

	"github.com/goliatone/go-marketplace-hooks/core"
)

// Next continues the dispatch with the remaining steps of a chain.
type Next func(ctx context.Context, req core.WebhookRequest) error

// Handler is one step of a webhook chain. A step may act before or after
// calling next, pass a different request downstream, or end the dispatch by
// not calling next at all.
type Handler interface {
	HandleWebhook(ctx context.Context, req core.WebhookRequest, next Next) error
}

type HandlerFunc func(ctx context.Context, req core.WebhookRequest, next Next) error

func (fn HandlerFunc) HandleWebhook(ctx context.Context, req core.WebhookRequest, next Next) error {
	return fn(ctx, req, next)
}

// Chain is an immutable ordered list of handlers. A Chain is itself a
// Handler, so chains can be nested.
type Chain struct {
	handlers []Handler
}

func NewChain(handlers ...Handler) *Chain {
	return &Chain{handlers: compactHandlers(nil, handlers)}
}

// WithAdditionalHandlers returns a new chain with handlers appended. The
// receiver is left untouched and the new chain never shares storage with it.
func (c *Chain) WithAdditionalHandlers(handlers ...Handler) *Chain {
	var existing []Handler
	if c != nil {
		existing = c.handlers
	}
	base := make([]Handler, len(existing), len(existing)+len(handlers))
	copy(base, existing)
	return &Chain{handlers: compactHandlers(base, handlers)}
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.handlers)
}

// Dispatch runs the chain with nothing after its last step.
func (c *Chain) Dispatch(ctx context.Context, req core.WebhookRequest) error {
	return c.HandleWebhook(ctx, req, nil)
}

// HandleWebhook runs the chain and then final, if the last step calls next.
func (c *Chain) HandleWebhook(ctx context.Context, req core.WebhookRequest, final Next) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var handlers []Handler
	if c != nil {
		handlers = c.handlers
	}
	return continuation(handlers, 0, final)(ctx, req)
}

// continuation binds index at construction so every step owns its position.
// Calling the same next twice runs the remainder twice.
func continuation(handlers []Handler, index int, final Next) Next {
	return func(ctx context.Context, req core.WebhookRequest) error {
		if index >= len(handlers) {
			if final == nil {
				return nil
			}
			return final(ctx, req)
		}
		return handlers[index].HandleWebhook(ctx, req, continuation(handlers, index+1, final))
	}
}

func compactHandlers(dst []Handler, handlers []Handler) []Handler {
	if dst == nil {
		dst = make([]Handler, 0, len(handlers))
	}
	for _, handler := range handlers {
		if isNilHandler(handler) {
			continue
		}
		dst = append(dst, handler)
	}
	return dst
}

// isNilHandler also reports typed nils, such as a nil *Step stored in the
// Handler interface, which would panic once dispatched.
func isNilHandler(handler Handler) bool {
	if handler == nil {
		return true
	}
	value := reflect.ValueOf(handler)
	switch value.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		return value.IsNil()
	default:
		return false
	}
}

var _ Handler = (*Chain)(nil)
