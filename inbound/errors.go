package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-marketplace-hooks/core"
)

func inboundBadInput(message string, metadata map[string]any) error {
	return core.NewBadInputError(message, metadata)
}

func inboundInternal(message string, metadata map[string]any) error {
	return core.NewInternalError(message, metadata)
}

// ClaimFailedError wraps a claim store failure so it is reported as an
// operation error rather than a request error.
func ClaimFailedError(source error, message string, metadata map[string]any) error {
	if source == nil {
		return inboundInternal(message, metadata)
	}
	err := goerrors.Wrap(source, goerrors.CategoryOperation, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
