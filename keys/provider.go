// Package keys resolves the public keys used to verify webhook signatures.
//
// Keys are identified by an issuer-assigned serial and never change once
// issued, so providers can be stacked as decorators: a remote API provider at
// the bottom, wrapped by a shared Redis cache and an in-process cache.
package keys

import (
	"context"
	"net/http"
)

// PublicKeyProvider returns the base64 encoded public key for serial.
type PublicKeyProvider interface {
	GetPublicKey(ctx context.Context, serial string) (string, error)
}

type ProviderFunc func(ctx context.Context, serial string) (string, error)

func (fn ProviderFunc) GetPublicKey(ctx context.Context, serial string) (string, error) {
	return fn(ctx, serial)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
