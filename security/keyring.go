package security

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-marketplace-hooks/core"
)

// KeyRing encrypts with its primary key and decrypts values written under any
// registered key id, which allows the encryption key to be rotated without
// re-encrypting stored secrets first.
type KeyRing struct {
	primary *AppKeySecretProvider
	byID    map[string]*AppKeySecretProvider
}

func NewKeyRing(primary *AppKeySecretProvider, previous ...*AppKeySecretProvider) (*KeyRing, error) {
	if primary == nil {
		return nil, fmt.Errorf("security: primary secret provider is required")
	}
	ring := &KeyRing{primary: primary, byID: map[string]*AppKeySecretProvider{}}
	for _, provider := range append([]*AppKeySecretProvider{primary}, previous...) {
		if provider == nil {
			continue
		}
		id := keyRingID(provider.KeyID(), provider.Version())
		if _, exists := ring.byID[id]; exists {
			return nil, fmt.Errorf("security: duplicate key %s", id)
		}
		ring.byID[id] = provider
	}
	return ring, nil
}

func (r *KeyRing) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if r == nil || r.primary == nil {
		return nil, fmt.Errorf("security: key ring is not configured")
	}
	return r.primary.Encrypt(ctx, plaintext)
}

func (r *KeyRing) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if r == nil || r.primary == nil {
		return nil, fmt.Errorf("security: key ring is not configured")
	}
	payload := string(ciphertext)
	if !strings.HasPrefix(payload, envelopePrefix) {
		return r.primary.Decrypt(ctx, ciphertext)
	}
	var parsed envelope
	if err := json.Unmarshal([]byte(strings.TrimPrefix(payload, envelopePrefix)), &parsed); err != nil {
		return nil, fmt.Errorf("security: decode envelope: %w", err)
	}
	provider, ok := r.byID[keyRingID(parsed.KeyID, parsed.Version)]
	if !ok {
		return nil, fmt.Errorf("security: no key registered for %s", keyRingID(parsed.KeyID, parsed.Version))
	}
	return provider.Decrypt(ctx, ciphertext)
}

func keyRingID(keyID string, version int) string {
	return fmt.Sprintf("%s@%d", keyID, version)
}

var _ core.SecretProvider = (*KeyRing)(nil)
