package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorMissingSignature          = "MISSING_SIGNATURE"
	ErrorMissingSignatureSerial    = "MISSING_SIGNATURE_SERIAL"
	ErrorMissingSignatureAlgorithm = "MISSING_SIGNATURE_ALGORITHM"
	ErrorMissingBody               = "MISSING_BODY"
	ErrorInvalidBody               = "INVALID_BODY"
	ErrorInvalidExtensionID        = "INVALID_EXTENSION_ID"
	ErrorInvalidSignature          = "INVALID_SIGNATURE"
	ErrorUnknownSignatureAlgorithm = "UNKNOWN_SIGNATURE_ALGORITHM"
	ErrorFailedToFetchPublicKey    = "FAILED_TO_FETCH_PUBLIC_KEY"
	ErrorInvalidPublicKey          = "INVALID_PUBLIC_KEY"
	ErrorExtensionNotFound         = "EXTENSION_NOT_FOUND"
	ErrorBadInput                  = "HOOKS_BAD_INPUT"
	ErrorInternal                  = "HOOKS_INTERNAL_ERROR"
)

// RequestErrorCodes are client-caused failures. The webhook sender is told why.
var RequestErrorCodes = []string{
	ErrorMissingSignature,
	ErrorMissingSignatureSerial,
	ErrorMissingSignatureAlgorithm,
	ErrorMissingBody,
	ErrorInvalidBody,
	ErrorInvalidExtensionID,
	ErrorInvalidSignature,
}

// VerificationInfraErrorCodes are server or configuration failures raised while
// verifying a request.
var VerificationInfraErrorCodes = []string{
	ErrorUnknownSignatureAlgorithm,
	ErrorFailedToFetchPublicKey,
	ErrorInvalidPublicKey,
}

func NewMissingSignatureError() error {
	return newHooksError("missing signature", goerrors.CategoryBadInput, http.StatusBadRequest, ErrorMissingSignature, nil)
}

func NewMissingSignatureSerialError() error {
	return newHooksError("missing signature serial", goerrors.CategoryBadInput, http.StatusBadRequest, ErrorMissingSignatureSerial, nil)
}

func NewMissingSignatureAlgorithmError() error {
	return newHooksError("missing signature algorithm", goerrors.CategoryBadInput, http.StatusBadRequest, ErrorMissingSignatureAlgorithm, nil)
}

func NewMissingBodyError() error {
	return newHooksError("missing body", goerrors.CategoryBadInput, http.StatusBadRequest, ErrorMissingBody, nil)
}

func NewInvalidBodyError(source error, message string) error {
	return wrapHooksError(source, message, goerrors.CategoryValidation, http.StatusBadRequest, ErrorInvalidBody, nil)
}

func NewInvalidExtensionIDError(received string) error {
	return newHooksError(
		fmt.Sprintf("invalid extension id: %s", received),
		goerrors.CategoryAuthz,
		http.StatusBadRequest,
		ErrorInvalidExtensionID,
		map[string]any{"extension_id": received},
	)
}

func NewInvalidSignatureError(serial string) error {
	return newHooksError(
		"webhook signature does not match request body",
		goerrors.CategoryAuth,
		http.StatusBadRequest,
		ErrorInvalidSignature,
		map[string]any{"serial": serial},
	)
}

func NewUnknownSignatureAlgorithmError(algorithm string) error {
	return newHooksError(
		fmt.Sprintf("unknown signature algorithm: %s", algorithm),
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		ErrorUnknownSignatureAlgorithm,
		map[string]any{"algorithm": algorithm},
	)
}

// NewFailedToFetchPublicKeyError reports a failed remote key lookup. status is
// the remote HTTP status, or zero when no response was received.
func NewFailedToFetchPublicKeyError(source error, serial string, status int) error {
	return wrapHooksError(
		source,
		fmt.Sprintf("failed to fetch public key for serial %s with status %d", serial, status),
		goerrors.CategoryExternal,
		http.StatusInternalServerError,
		ErrorFailedToFetchPublicKey,
		map[string]any{"serial": serial, "status": status},
	)
}

func NewInvalidPublicKeyError(source error, serial string) error {
	return wrapHooksError(
		source,
		fmt.Sprintf("public key for serial %s is not valid base64", serial),
		goerrors.CategoryExternal,
		http.StatusInternalServerError,
		ErrorInvalidPublicKey,
		map[string]any{"serial": serial},
	)
}

func NewExtensionNotFoundError(extensionInstanceID string) error {
	return newHooksError(
		fmt.Sprintf("extension instance %s not found", extensionInstanceID),
		goerrors.CategoryNotFound,
		http.StatusNotFound,
		ErrorExtensionNotFound,
		map[string]any{"extension_instance_id": extensionInstanceID},
	)
}

func NewBadInputError(message string, metadata map[string]any) error {
	return newHooksError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorBadInput, metadata)
}

func NewInternalError(message string, metadata map[string]any) error {
	return newHooksError(message, goerrors.CategoryInternal, http.StatusInternalServerError, ErrorInternal, metadata)
}

// HasTextCode reports whether err carries one of the given go-errors text codes.
func HasTextCode(err error, codes ...string) bool {
	code := TextCode(err)
	if code == "" {
		return false
	}
	for _, candidate := range codes {
		if code == candidate {
			return true
		}
	}
	return false
}

func TextCode(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return ""
	}
	return strings.TrimSpace(rich.TextCode)
}

func IsRequestError(err error) bool {
	return HasTextCode(err, RequestErrorCodes...)
}

func IsVerificationInfraError(err error) bool {
	return HasTextCode(err, VerificationInfraErrorCodes...)
}

// ErrorMessage returns the message of a classified error without wrapped
// source details, falling back to err.Error().
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil && strings.TrimSpace(rich.Message) != "" {
		return rich.Message
	}
	return err.Error()
}

func newHooksError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapHooksError(
	source error,
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return newHooksError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
