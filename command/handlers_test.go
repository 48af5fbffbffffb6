package command

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/hookstest"
)

func TestStorage_DelegatesValidOperations(t *testing.T) {
	recording := &hookstest.RecordingStorage{}
	storage := NewStorage(recording)
	ctx := context.Background()

	if err := storage.UpsertExtension(ctx, core.ExtensionToBeAdded{ExtensionInstanceID: "e1", ContextID: "c1", Secret: "s"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := storage.UpdateExtension(ctx, core.ExtensionToBeUpdated{ExtensionInstanceID: "e1", Enabled: true}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := storage.RotateSecret(ctx, "e1", "s2"); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := storage.RemoveInstance(ctx, "e1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	calls := recording.Calls()
	expected := []string{"upsert", "update", "rotate", "remove"}
	if len(calls) != len(expected) {
		t.Fatalf("expected %d calls, got %+v", len(expected), calls)
	}
	for i, op := range expected {
		if calls[i].Op != op || calls[i].ID != "e1" {
			t.Fatalf("call %d: expected %s on e1, got %+v", i, op, calls[i])
		}
	}
}

func TestStorage_RejectsInvalidMessages(t *testing.T) {
	recording := &hookstest.RecordingStorage{}
	storage := NewStorage(recording)

	err := storage.RotateSecret(context.Background(), "e1", "")
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.Code != http.StatusBadRequest {
		t.Fatalf("unexpected envelope %q/%d", rich.Category, rich.Code)
	}
	validation := rich.AllValidationErrors()
	if len(validation) == 0 || validation[0].Field != "secret" {
		t.Fatalf("expected secret field error, got %+v", validation)
	}
	if err := storage.RemoveInstance(context.Background(), " "); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input for empty id, got %v", err)
	}
	if len(recording.Calls()) != 0 {
		t.Fatalf("expected invalid messages never to reach storage")
	}
}

func TestStorage_PropagatesStorageErrors(t *testing.T) {
	failure := errors.New("write failed")
	storage := NewStorage(&hookstest.RecordingStorage{Err: failure})
	if err := storage.UpdateExtension(context.Background(), core.ExtensionToBeUpdated{ExtensionInstanceID: "e1"}); !errors.Is(err, failure) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestCommand_NilStorageIsDependencyError(t *testing.T) {
	var cmd *UpsertExtensionCommand
	err := cmd.Execute(context.Background(), UpsertExtensionMessage{})
	if !core.HasTextCode(err, core.ErrorInternal) {
		t.Fatalf("expected internal dependency error, got %v", err)
	}
}
