package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type ContextKind string

const (
	ContextKindCustomer ContextKind = "customer"
	ContextKindProject  ContextKind = "project"
)

type ExtensionInstance struct {
	ID              string
	ContextID       string
	ContextKind     ContextKind
	ConsentedScopes []string
	Secret          string
	Enabled         bool
	VariantKey      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ExtensionToBeAdded struct {
	ExtensionInstanceID string
	ContextID           string
	ContextKind         ContextKind
	ConsentedScopes     []string
	Secret              string
	VariantKey          string
}

type ExtensionToBeUpdated struct {
	ExtensionInstanceID string
	ContextID           string
	ContextKind         ContextKind
	ConsentedScopes     []string
	Enabled             bool
	VariantKey          string
}

// ExtensionStorage persists extension instance state. Every operation is keyed
// by the extension instance id and must be safe to repeat.
type ExtensionStorage interface {
	UpsertExtension(ctx context.Context, extension ExtensionToBeAdded) error
	UpdateExtension(ctx context.Context, extension ExtensionToBeUpdated) error
	RotateSecret(ctx context.Context, extensionInstanceID string, secret string) error
	RemoveInstance(ctx context.Context, extensionInstanceID string) error
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
