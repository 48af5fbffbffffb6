// Package hookstest provides test doubles and fixtures for webhook chains.
package hookstest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const (
	ExtensionID = "ext-5f0c6a3e"
	Serial      = "serial-1"
	Algorithm   = "Ed25519"
)

// Body builds a webhook payload of the given kind. Overrides are merged at the
// top level and a nil override value deletes the key.
func Body(kind string, overrides map[string]any) string {
	payload := map[string]any{
		"id":         "e1",
		"apiVersion": "v1",
		"kind":       kind,
		"context":    map[string]any{"id": "c1", "kind": "customer"},
		"meta":       map[string]any{"extensionId": ExtensionID, "contributorId": "contrib-1"},
		"request": map[string]any{
			"id":        "req-" + kind,
			"createdAt": "2026-03-01T12:00:00Z",
			"target":    map[string]any{"method": "POST", "url": "https://example.test/webhooks"},
		},
	}
	switch kind {
	case "ExtensionAddedToContext":
		payload["consentedScopes"] = []any{"a"}
		payload["state"] = map[string]any{"enabled": true}
		payload["secret"] = "s"
	case "InstanceUpdated", "InstanceRemovedFromContext":
		payload["consentedScopes"] = []any{"a"}
		payload["state"] = map[string]any{"enabled": false}
	case "SecretRotated":
		payload["secret"] = "s2"
	}
	for key, value := range overrides {
		if value == nil {
			delete(payload, key)
			continue
		}
		payload[key] = value
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return string(encoded)
}

type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

func NewKeyPair() KeyPair {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return KeyPair{Public: public, Private: private}
}

func (k KeyPair) PublicBase64() string {
	return base64.StdEncoding.EncodeToString(k.Public)
}

func (k KeyPair) Sign(body string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(k.Private, []byte(body)))
}

// SignedRequest returns a request for body signed with k under Serial.
func (k KeyPair) SignedRequest(body string) core.WebhookRequest {
	return core.WebhookRequest{
		RawBody:            body,
		SignatureSerial:    Serial,
		SignatureAlgorithm: Algorithm,
		Signature:          k.Sign(body),
	}
}

// StaticKeys serves public keys from a map and counts lookups.
type StaticKeys struct {
	mu    sync.Mutex
	Keys  map[string]string
	Err   error
	calls int
}

func (s *StaticKeys) GetPublicKey(_ context.Context, serial string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return "", s.Err
	}
	key, ok := s.Keys[serial]
	if !ok {
		return "", core.NewFailedToFetchPublicKeyError(nil, serial, 404)
	}
	return key, nil
}

func (s *StaticKeys) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// StorageCall records one ExtensionStorage invocation.
type StorageCall struct {
	Op      string
	Added   core.ExtensionToBeAdded
	Updated core.ExtensionToBeUpdated
	ID      string
	Secret  string
}

// RecordingStorage is an ExtensionStorage that records calls and can fail.
type RecordingStorage struct {
	mu    sync.Mutex
	Err   error
	calls []StorageCall
}

func (s *RecordingStorage) UpsertExtension(_ context.Context, extension core.ExtensionToBeAdded) error {
	return s.record(StorageCall{Op: "upsert", Added: extension, ID: extension.ExtensionInstanceID})
}

func (s *RecordingStorage) UpdateExtension(_ context.Context, extension core.ExtensionToBeUpdated) error {
	return s.record(StorageCall{Op: "update", Updated: extension, ID: extension.ExtensionInstanceID})
}

func (s *RecordingStorage) RotateSecret(_ context.Context, id string, secret string) error {
	return s.record(StorageCall{Op: "rotate", ID: id, Secret: secret})
}

func (s *RecordingStorage) RemoveInstance(_ context.Context, id string) error {
	return s.record(StorageCall{Op: "remove", ID: id})
}

func (s *RecordingStorage) Calls() []StorageCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StorageCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *RecordingStorage) record(call StorageCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.Err
}

var _ core.ExtensionStorage = (*RecordingStorage)(nil)
