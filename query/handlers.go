package query

import (
	"context"

	"github.com/goliatone/go-marketplace-hooks/core"
)

type ExtensionReader interface {
	GetExtension(ctx context.Context, extensionInstanceID string) (core.ExtensionInstance, error)
	ListExtensions(ctx context.Context, contextID string) ([]core.ExtensionInstance, error)
}

type GetExtensionQuery struct {
	reader ExtensionReader
}

func NewGetExtensionQuery(reader ExtensionReader) *GetExtensionQuery {
	return &GetExtensionQuery{reader: reader}
}

func (q *GetExtensionQuery) Query(ctx context.Context, msg GetExtensionMessage) (core.ExtensionInstance, error) {
	if q == nil || q.reader == nil {
		return core.ExtensionInstance{}, queryDependencyError("query: extension reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.ExtensionInstance{}, err
	}
	return q.reader.GetExtension(ctx, msg.ExtensionInstanceID)
}

type ListExtensionsQuery struct {
	reader ExtensionReader
}

func NewListExtensionsQuery(reader ExtensionReader) *ListExtensionsQuery {
	return &ListExtensionsQuery{reader: reader}
}

func (q *ListExtensionsQuery) Query(ctx context.Context, msg ListExtensionsMessage) ([]core.ExtensionInstance, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: extension reader is required")
	}
	return q.reader.ListExtensions(ctx, msg.ContextID)
}
