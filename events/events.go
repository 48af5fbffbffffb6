// Package events decodes marketplace webhook payloads into typed events.
//
// Payloads are validated against an embedded JSON Schema before they are
// unmarshalled, so a decoded event always has every required field.
package events

import (
	"github.com/goliatone/go-marketplace-hooks/core"
)

type Kind string

const (
	KindExtensionAddedToContext    Kind = "ExtensionAddedToContext"
	KindInstanceUpdated            Kind = "InstanceUpdated"
	KindSecretRotated              Kind = "SecretRotated"
	KindInstanceRemovedFromContext Kind = "InstanceRemovedFromContext"
)

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindExtensionAddedToContext,
		KindInstanceUpdated,
		KindSecretRotated,
		KindInstanceRemovedFromContext,
	}
}

func (k Kind) Valid() bool {
	switch k {
	case KindExtensionAddedToContext, KindInstanceUpdated, KindSecretRotated, KindInstanceRemovedFromContext:
		return true
	default:
		return false
	}
}

type Context struct {
	ID   string           `json:"id"`
	Kind core.ContextKind `json:"kind"`
}

type Meta struct {
	ExtensionID   string `json:"extensionId"`
	ContributorID string `json:"contributorId,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

type RequestTarget struct {
	Method string `json:"method,omitempty"`
	URL    string `json:"url,omitempty"`
}

type RequestInfo struct {
	ID        string        `json:"id,omitempty"`
	CreatedAt string        `json:"createdAt,omitempty"`
	Target    RequestTarget `json:"target"`
}

// Envelope holds the fields every webhook kind shares. ID is the extension
// instance id.
type Envelope struct {
	ID         string      `json:"id"`
	APIVersion string      `json:"apiVersion"`
	Kind       Kind        `json:"kind"`
	Context    Context     `json:"context"`
	Meta       Meta        `json:"meta"`
	Request    RequestInfo `json:"request"`
	VariantKey string      `json:"variantKey,omitempty"`
}

type State struct {
	Enabled bool `json:"enabled"`
}

// Event is one of the four decoded webhook variants.
type Event interface {
	EventKind() Kind
	InstanceID() string
	EnvelopeData() Envelope
}

type ExtensionAddedToContext struct {
	Envelope
	ConsentedScopes []string `json:"consentedScopes"`
	State           State    `json:"state"`
	Secret          string   `json:"secret"`
}

type InstanceUpdated struct {
	Envelope
	ConsentedScopes []string `json:"consentedScopes"`
	State           State    `json:"state"`
}

type SecretRotated struct {
	Envelope
	Secret string `json:"secret"`
}

type InstanceRemovedFromContext struct {
	Envelope
	ConsentedScopes []string `json:"consentedScopes"`
	State           State    `json:"state"`
}

func (e Envelope) EventKind() Kind        { return e.Kind }
func (e Envelope) InstanceID() string     { return e.ID }
func (e Envelope) EnvelopeData() Envelope { return e }

var (
	_ Event = ExtensionAddedToContext{}
	_ Event = InstanceUpdated{}
	_ Event = SecretRotated{}
	_ Event = InstanceRemovedFromContext{}
)
