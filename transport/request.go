package transport

import (
	"errors"
	"io"
	"net/http"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const DefaultMaxBodyBytes int64 = 1 << 20

// RequestFromHTTP reads the signature headers and at most maxBodyBytes of
// body. A larger body fails with INVALID_BODY rather than being truncated,
// since a truncated body can never verify.
func RequestFromHTTP(r *http.Request, maxBodyBytes int64) (core.WebhookRequest, error) {
	if r == nil {
		return core.WebhookRequest{}, core.NewMissingBodyError()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	req := core.WebhookRequest{
		SignatureSerial:    r.Header.Get(core.HeaderSignatureSerial),
		SignatureAlgorithm: r.Header.Get(core.HeaderSignatureAlgorithm),
		Signature:          r.Header.Get(core.HeaderSignature),
	}
	if r.Body == nil {
		return req, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return req, core.NewInvalidBodyError(err, "Failed to read webhook body")
	}
	if int64(len(body)) > maxBodyBytes {
		return req, core.NewInvalidBodyError(errors.New("transport: body exceeds limit"), "Webhook body is too large")
	}
	req.RawBody = string(body)
	return req, nil
}
