package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/goliatone/go-marketplace-hooks/core"
	"github.com/goliatone/go-marketplace-hooks/hookstest"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"success", nil, http.StatusOK, SuccessMessage},
		{"missing signature", core.NewMissingSignatureError(), http.StatusBadRequest, core.ErrorMessage(core.NewMissingSignatureError())},
		{"invalid body", core.NewInvalidBodyError(errors.New("detail"), "bad body"), http.StatusBadRequest, "bad body"},
		{"extension id", core.NewInvalidExtensionIDError("other"), http.StatusBadRequest, core.ErrorMessage(core.NewInvalidExtensionIDError("other"))},
		{"invalid signature", core.NewInvalidSignatureError("s1"), http.StatusBadRequest, core.ErrorMessage(core.NewInvalidSignatureError("s1"))},
		{"unknown algorithm", core.NewUnknownSignatureAlgorithmError("rsa"), http.StatusInternalServerError, core.ErrorMessage(core.NewUnknownSignatureAlgorithmError("rsa"))},
		{"key fetch", core.NewFailedToFetchPublicKeyError(nil, "s1", 503), http.StatusInternalServerError, core.ErrorMessage(core.NewFailedToFetchPublicKeyError(nil, "s1", 503))},
		{"invalid key", core.NewInvalidPublicKeyError(nil, "s1"), http.StatusInternalServerError, core.ErrorMessage(core.NewInvalidPublicKeyError(nil, "s1"))},
		{"unclassified", errors.New("database password leaked"), http.StatusInternalServerError, UnknownErrorMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := Classify(tc.err)
			if outcome.Status != tc.status || outcome.Message != tc.message {
				t.Fatalf("expected %d %q, got %d %q", tc.status, tc.message, outcome.Status, outcome.Message)
			}
		})
	}
}

func TestRequestFromHTTP_ReadsHeadersAndBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(`{"a":1}`))
	r.Header.Set("x-marketplace-signature", "sig")
	r.Header.Set("x-marketplace-signature-serial", "serial")
	r.Header.Set("x-marketplace-signature-algorithm", "Ed25519")

	req, err := RequestFromHTTP(r, 0)
	if err != nil {
		t.Fatalf("request from http: %v", err)
	}
	if req.RawBody != `{"a":1}` || req.Signature != "sig" || req.SignatureSerial != "serial" || req.SignatureAlgorithm != "Ed25519" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestRequestFromHTTP_RejectsOversizedBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader("0123456789"))
	if _, err := RequestFromHTTP(r, 4); !core.HasTextCode(err, core.ErrorInvalidBody) {
		t.Fatalf("expected INVALID_BODY, got %v", err)
	}
}

func TestHTTPHandler_DispatchesAndClassifies(t *testing.T) {
	var seen core.WebhookRequest
	dispatcher := DispatcherFunc(func(_ context.Context, req core.WebhookRequest) error {
		seen = req
		if req.Signature == "" {
			return core.NewMissingSignatureError()
		}
		return nil
	})
	handler := NewHTTPHandler(dispatcher)

	pair := hookstest.NewKeyPair()
	signed := pair.SignedRequest(hookstest.Body("SecretRotated", nil))
	res := serve(handler, http.MethodPost, signed)
	if res.Code != http.StatusOK || res.Body.String() != SuccessMessage {
		t.Fatalf("expected 200 success, got %d %q", res.Code, res.Body.String())
	}
	if seen != signed {
		t.Fatalf("expected dispatcher to see the request, got %+v", seen)
	}

	signed.Signature = ""
	res = serve(handler, http.MethodPost, signed)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestHTTPHandler_RejectsNonPost(t *testing.T) {
	handler := NewHTTPHandler(DispatcherFunc(func(context.Context, core.WebhookRequest) error {
		t.Fatalf("dispatcher must not run")
		return nil
	}))
	res := serve(handler, http.MethodGet, core.WebhookRequest{})
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestHTTPHandler_HidesAndLogsUnclassifiedErrors(t *testing.T) {
	logger := hookstest.NewCaptureLogger()
	handler := NewHTTPHandler(DispatcherFunc(func(context.Context, core.WebhookRequest) error {
		return errors.New("connection refused to db-primary")
	}), WithLogger(logger))

	res := serve(handler, http.MethodPost, core.WebhookRequest{RawBody: "{}"})
	if res.Code != http.StatusInternalServerError || res.Body.String() != UnknownErrorMessage {
		t.Fatalf("expected generic 500, got %d %q", res.Code, res.Body.String())
	}
	if _, ok := logger.Find("error", "Unknown error occurred"); !ok {
		t.Fatalf("expected the unclassified error to be logged")
	}
}

func TestGinHandler_ServesOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhooks", GinHandler(DispatcherFunc(func(_ context.Context, req core.WebhookRequest) error {
		if req.SignatureSerial == "bad" {
			return core.NewFailedToFetchPublicKeyError(nil, "bad", 404)
		}
		return nil
	})))

	res := serve(router, http.MethodPost, core.WebhookRequest{RawBody: "{}", SignatureSerial: "ok"})
	if res.Code != http.StatusOK || res.Body.String() != SuccessMessage {
		t.Fatalf("expected 200, got %d %q", res.Code, res.Body.String())
	}
	res = serve(router, http.MethodPost, core.WebhookRequest{RawBody: "{}", SignatureSerial: "bad"})
	if res.Code != http.StatusInternalServerError || res.Body.String() == UnknownErrorMessage {
		t.Fatalf("expected classified 500, got %d %q", res.Code, res.Body.String())
	}
}

func serve(handler http.Handler, method string, req core.WebhookRequest) *httptest.ResponseRecorder {
	var body io.Reader = strings.NewReader(req.RawBody)
	r := httptest.NewRequest(method, "/webhooks", body)
	r.Header.Set(core.HeaderSignature, req.Signature)
	r.Header.Set(core.HeaderSignatureSerial, req.SignatureSerial)
	r.Header.Set(core.HeaderSignatureAlgorithm, req.SignatureAlgorithm)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, r)
	return res
}
