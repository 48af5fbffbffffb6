package core

import "strings"

const (
	HeaderSignature          = "x-marketplace-signature"
	HeaderSignatureSerial    = "x-marketplace-signature-serial"
	HeaderSignatureAlgorithm = "x-marketplace-signature-algorithm"
)

// WebhookRequest is the normalized form of one inbound webhook call. It is
// passed by value; steps that need to hand a different view downstream pass a
// new value to their continuation instead of mutating the one they received.
type WebhookRequest struct {
	RawBody            string `json:"rawBody"`
	SignatureSerial    string `json:"signatureSerial"`
	SignatureAlgorithm string `json:"signatureAlgorithm"`
	Signature          string `json:"signature"`
}

// WebhookRequestFromHeaders builds a request from a raw body and a header
// lookup. Header names are matched case-insensitively.
func WebhookRequestFromHeaders(body string, headers map[string]string) WebhookRequest {
	return WebhookRequest{
		RawBody:            body,
		SignatureSerial:    headerValue(headers, HeaderSignatureSerial),
		SignatureAlgorithm: headerValue(headers, HeaderSignatureAlgorithm),
		Signature:          headerValue(headers, HeaderSignature),
	}
}

func (r WebhookRequest) WithRawBody(body string) WebhookRequest {
	r.RawBody = body
	return r
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
