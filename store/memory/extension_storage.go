// Package memory provides an in-process ExtensionStorage for tests and
// single-replica deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-marketplace-hooks/core"
)

type ExtensionStorage struct {
	mu        sync.RWMutex
	instances map[string]core.ExtensionInstance
	now       func() time.Time
}

func NewExtensionStorage() *ExtensionStorage {
	return &ExtensionStorage{
		instances: map[string]core.ExtensionInstance{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ExtensionStorage) UpsertExtension(_ context.Context, extension core.ExtensionToBeAdded) error {
	id := strings.TrimSpace(extension.ExtensionInstanceID)
	if id == "" {
		return core.NewBadInputError("memory: extension instance id is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	instance, exists := s.instances[id]
	if !exists {
		instance = core.ExtensionInstance{ID: id, CreatedAt: now}
	}
	instance.ConsentedScopes = cloneScopes(extension.ConsentedScopes)
	instance.ContextID = extension.ContextID
	instance.ContextKind = extension.ContextKind
	instance.Secret = extension.Secret
	instance.VariantKey = extension.VariantKey
	instance.Enabled = true
	instance.UpdatedAt = now
	s.instances[id] = instance
	return nil
}

func (s *ExtensionStorage) UpdateExtension(_ context.Context, extension core.ExtensionToBeUpdated) error {
	id := strings.TrimSpace(extension.ExtensionInstanceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, exists := s.instances[id]
	if !exists {
		return nil
	}
	instance.ContextID = extension.ContextID
	instance.ContextKind = extension.ContextKind
	instance.ConsentedScopes = cloneScopes(extension.ConsentedScopes)
	instance.Enabled = extension.Enabled
	instance.VariantKey = extension.VariantKey
	instance.UpdatedAt = s.now()
	s.instances[id] = instance
	return nil
}

func (s *ExtensionStorage) RotateSecret(_ context.Context, extensionInstanceID string, secret string) error {
	id := strings.TrimSpace(extensionInstanceID)
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, exists := s.instances[id]
	if !exists {
		return nil
	}
	instance.Secret = secret
	instance.UpdatedAt = s.now()
	s.instances[id] = instance
	return nil
}

func (s *ExtensionStorage) RemoveInstance(_ context.Context, extensionInstanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, strings.TrimSpace(extensionInstanceID))
	return nil
}

func (s *ExtensionStorage) GetExtension(_ context.Context, extensionInstanceID string) (core.ExtensionInstance, error) {
	id := strings.TrimSpace(extensionInstanceID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	instance, ok := s.instances[id]
	if !ok {
		return core.ExtensionInstance{}, core.NewExtensionNotFoundError(id)
	}
	return cloneInstance(instance), nil
}

// ListExtensions returns instances ordered by id. An empty contextID matches
// every context.
func (s *ExtensionStorage) ListExtensions(_ context.Context, contextID string) ([]core.ExtensionInstance, error) {
	contextID = strings.TrimSpace(contextID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.ExtensionInstance, 0, len(s.instances))
	for _, instance := range s.instances {
		if contextID != "" && instance.ContextID != contextID {
			continue
		}
		out = append(out, cloneInstance(instance))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneInstance(instance core.ExtensionInstance) core.ExtensionInstance {
	instance.ConsentedScopes = cloneScopes(instance.ConsentedScopes)
	return instance
}

func cloneScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	return append([]string(nil), scopes...)
}

var _ core.ExtensionStorage = (*ExtensionStorage)(nil)
