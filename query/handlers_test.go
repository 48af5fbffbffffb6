package query

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/store/memory"
)

func TestExtensionQueries_ReadFromStorage(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewExtensionStorage()
	_ = storage.UpsertExtension(ctx, core.ExtensionToBeAdded{ExtensionInstanceID: "e1", ContextID: "c1", Secret: "s"})
	_ = storage.UpsertExtension(ctx, core.ExtensionToBeAdded{ExtensionInstanceID: "e2", ContextID: "c2", Secret: "s"})

	instance, err := NewGetExtensionQuery(storage).Query(ctx, GetExtensionMessage{ExtensionInstanceID: "e1"})
	if err != nil {
		t.Fatalf("get extension: %v", err)
	}
	if instance.ContextID != "c1" {
		t.Fatalf("unexpected instance %+v", instance)
	}

	list, err := NewListExtensionsQuery(storage).Query(ctx, ListExtensionsMessage{ContextID: "c2"})
	if err != nil {
		t.Fatalf("list extensions: %v", err)
	}
	if len(list) != 1 || list[0].ID != "e2" {
		t.Fatalf("unexpected list %+v", list)
	}

	_, err = NewGetExtensionQuery(storage).Query(ctx, GetExtensionMessage{ExtensionInstanceID: "nope"})
	if !core.HasTextCode(err, core.ErrorExtensionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetExtensionMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetExtensionMessage{}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.Code != http.StatusBadRequest {
		t.Fatalf("unexpected envelope %q/%d", rich.Category, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "extension_instance_id" {
		t.Fatalf("expected extension_instance_id field error, got %+v", validation)
	}
}

func TestGetExtensionQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *GetExtensionQuery
	_, err := q.Query(context.Background(), GetExtensionMessage{ExtensionInstanceID: "e1"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.ErrorInternal {
		t.Fatalf("unexpected envelope %q/%q", rich.Category, rich.TextCode)
	}
}
