package events

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/goliatone/go-marketplace-hooks/core"
)

const schemaURL = "https://hooks.local/schema/webhook.json"

//go:embed schema/webhook.json
var webhookSchemaJSON []byte

type schemas struct {
	webhook  *jsonschema.Schema
	envelope *jsonschema.Schema
}

var (
	compileOnce sync.Once
	compiled    schemas
	compileErr  error
)

func loadSchemas() (schemas, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(webhookSchemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("events: parse embedded schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("events: add schema resource: %w", err)
			return
		}
		webhook, err := c.Compile(schemaURL)
		if err != nil {
			compileErr = fmt.Errorf("events: compile webhook schema: %w", err)
			return
		}
		envelope, err := c.Compile(schemaURL + "#/$defs/envelope")
		if err != nil {
			compileErr = fmt.Errorf("events: compile envelope schema: %w", err)
			return
		}
		compiled = schemas{webhook: webhook, envelope: envelope}
	})
	return compiled, compileErr
}

// SchemaJSON returns a copy of the embedded webhook schema.
func SchemaJSON() []byte {
	return append([]byte(nil), webhookSchemaJSON...)
}

// Decode validates body against the full webhook schema and returns the
// typed variant for its kind.
func Decode(body string) (Event, error) {
	s, err := loadSchemas()
	if err != nil {
		return nil, core.NewInternalError(err.Error(), nil)
	}
	if err := validate(s.webhook, body, "Request body does not match the expected schema"); err != nil {
		return nil, err
	}
	var head struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal([]byte(body), &head); err != nil {
		return nil, core.NewInvalidBodyError(err, "Request body does not match the expected schema")
	}
	switch head.Kind {
	case KindExtensionAddedToContext:
		return unmarshalEvent[ExtensionAddedToContext](body)
	case KindInstanceUpdated:
		return unmarshalEvent[InstanceUpdated](body)
	case KindSecretRotated:
		return unmarshalEvent[SecretRotated](body)
	case KindInstanceRemovedFromContext:
		return unmarshalEvent[InstanceRemovedFromContext](body)
	default:
		return nil, core.NewInvalidBodyError(nil, fmt.Sprintf("unknown webhook kind %q", head.Kind))
	}
}

// DecodeEnvelope validates only the fields shared by every kind.
func DecodeEnvelope(body string) (Envelope, error) {
	s, err := loadSchemas()
	if err != nil {
		return Envelope{}, core.NewInternalError(err.Error(), nil)
	}
	if err := validate(s.envelope, body, "Failed to read webhook envelope, request body does not match the expected schema"); err != nil {
		return Envelope{}, err
	}
	var envelope Envelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return Envelope{}, core.NewInvalidBodyError(err, "Failed to read webhook envelope")
	}
	return envelope, nil
}

// DecodeKind decodes body and fails unless it is of the expected kind.
func DecodeKind[T Event](body string, kind Kind) (T, error) {
	var zero T
	event, err := Decode(body)
	if err != nil {
		return zero, err
	}
	if event.EventKind() != kind {
		return zero, core.NewInvalidBodyError(nil, fmt.Sprintf("expected webhook kind %q, got %q", kind, event.EventKind()))
	}
	typed, ok := event.(T)
	if !ok {
		return zero, core.NewInvalidBodyError(nil, fmt.Sprintf("webhook kind %q has unexpected type %T", kind, event))
	}
	return typed, nil
}

func validate(schema *jsonschema.Schema, body string, message string) error {
	if strings.TrimSpace(body) == "" {
		return core.NewInvalidBodyError(nil, message+": body is empty")
	}
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(body))
	if err != nil {
		return core.NewInvalidBodyError(err, message)
	}
	if err := schema.Validate(instance); err != nil {
		return core.NewInvalidBodyError(err, message)
	}
	return nil
}

func unmarshalEvent[T Event](body string) (Event, error) {
	var event T
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return nil, core.NewInvalidBodyError(err, "Request body does not match the expected schema")
	}
	return event, nil
}
