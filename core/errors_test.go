package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestHookErrors_CarryCategoryCodeAndTextCode(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		code     int
		textCode string
	}{
		{"missing signature", NewMissingSignatureError(), goerrors.CategoryBadInput, http.StatusBadRequest, ErrorMissingSignature},
		{"missing serial", NewMissingSignatureSerialError(), goerrors.CategoryBadInput, http.StatusBadRequest, ErrorMissingSignatureSerial},
		{"missing algorithm", NewMissingSignatureAlgorithmError(), goerrors.CategoryBadInput, http.StatusBadRequest, ErrorMissingSignatureAlgorithm},
		{"missing body", NewMissingBodyError(), goerrors.CategoryBadInput, http.StatusBadRequest, ErrorMissingBody},
		{"invalid body", NewInvalidBodyError(errors.New("boom"), "invalid body"), goerrors.CategoryValidation, http.StatusBadRequest, ErrorInvalidBody},
		{"invalid extension", NewInvalidExtensionIDError("other"), goerrors.CategoryAuthz, http.StatusBadRequest, ErrorInvalidExtensionID},
		{"invalid signature", NewInvalidSignatureError("s1"), goerrors.CategoryAuth, http.StatusBadRequest, ErrorInvalidSignature},
		{"unknown algorithm", NewUnknownSignatureAlgorithmError("rsa"), goerrors.CategoryInternal, http.StatusInternalServerError, ErrorUnknownSignatureAlgorithm},
		{"fetch failure", NewFailedToFetchPublicKeyError(nil, "s1", 404), goerrors.CategoryExternal, http.StatusInternalServerError, ErrorFailedToFetchPublicKey},
		{"invalid key", NewInvalidPublicKeyError(errors.New("bad base64"), "s1"), goerrors.CategoryExternal, http.StatusInternalServerError, ErrorInvalidPublicKey},
	}
	for _, tc := range cases {
		var rich *goerrors.Error
		if !goerrors.As(tc.err, &rich) {
			t.Fatalf("%s: expected go-errors error, got %T", tc.name, tc.err)
		}
		if rich.Category != tc.category {
			t.Fatalf("%s: expected category %q, got %q", tc.name, tc.category, rich.Category)
		}
		if rich.Code != tc.code {
			t.Fatalf("%s: expected code %d, got %d", tc.name, tc.code, rich.Code)
		}
		if rich.TextCode != tc.textCode {
			t.Fatalf("%s: expected text code %q, got %q", tc.name, tc.textCode, rich.TextCode)
		}
	}
}

func TestFailedToFetchPublicKeyError_CarriesSerialAndStatus(t *testing.T) {
	err := NewFailedToFetchPublicKeyError(errors.New("dial tcp"), "serial-1", 503)
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors error")
	}
	if rich.Metadata["serial"] != "serial-1" {
		t.Fatalf("expected serial metadata, got %#v", rich.Metadata["serial"])
	}
	if rich.Metadata["status"] != 503 {
		t.Fatalf("expected status metadata, got %#v", rich.Metadata["status"])
	}
}

func TestInvalidExtensionIDError_CarriesReceivedID(t *testing.T) {
	err := NewInvalidExtensionIDError("ext-other")
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors error")
	}
	if rich.Metadata["extension_id"] != "ext-other" {
		t.Fatalf("expected received extension id in metadata, got %#v", rich.Metadata)
	}
}

func TestHasTextCode_SurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("step failed: %w", NewMissingBodyError())
	if !HasTextCode(err, ErrorMissingSignature, ErrorMissingBody) {
		t.Fatalf("expected wrapped error to match text code")
	}
	if HasTextCode(err, ErrorInvalidBody) {
		t.Fatalf("expected no match for other text code")
	}
	if HasTextCode(errors.New("plain"), ErrorMissingBody) {
		t.Fatalf("expected plain error to carry no text code")
	}
	if HasTextCode(nil, ErrorMissingBody) {
		t.Fatalf("expected nil error to carry no text code")
	}
}

func TestErrorClassificationHelpers(t *testing.T) {
	if !IsRequestError(NewInvalidSignatureError("s")) {
		t.Fatalf("expected invalid signature to be a request error")
	}
	if IsRequestError(NewInvalidPublicKeyError(nil, "s")) {
		t.Fatalf("expected invalid public key not to be a request error")
	}
	if !IsVerificationInfraError(NewUnknownSignatureAlgorithmError("x")) {
		t.Fatalf("expected unknown algorithm to be an infra error")
	}
	if IsVerificationInfraError(errors.New("other")) {
		t.Fatalf("expected plain error not to be classified")
	}
}

func TestErrorMessage_OmitsWrappedSource(t *testing.T) {
	err := NewFailedToFetchPublicKeyError(errors.New("connection refused"), "s9", 0)
	if got := ErrorMessage(err); got != "failed to fetch public key for serial s9 with status 0" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := ErrorMessage(errors.New("plain")); got != "plain" {
		t.Fatalf("expected plain message, got %q", got)
	}
}
