package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-marketplace-hooks/core"
)

// ExtensionStore persists extension instances with bun. Secrets are encrypted
// through the configured SecretProvider before they reach the database.
type ExtensionStore struct {
	db      *bun.DB
	repo    repository.Repository[*extensionInstanceRecord]
	secrets core.SecretProvider
	now     func() time.Time
}

type ExtensionStoreOption func(*ExtensionStore)

func WithSecretProvider(provider core.SecretProvider) ExtensionStoreOption {
	return func(s *ExtensionStore) {
		s.secrets = provider
	}
}

func WithClock(now func() time.Time) ExtensionStoreOption {
	return func(s *ExtensionStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewExtensionStore(db *bun.DB, opts ...ExtensionStoreOption) (*ExtensionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*extensionInstanceRecord](db, extensionInstanceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid extension instance repository wiring: %w", err)
		}
	}
	store := &ExtensionStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *ExtensionStore) UpsertExtension(ctx context.Context, extension core.ExtensionToBeAdded) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: extension store is not configured")
	}
	id := strings.TrimSpace(extension.ExtensionInstanceID)
	if id == "" {
		return core.NewBadInputError("sqlstore: extension instance id is required", nil)
	}
	secret, err := s.sealSecret(ctx, extension.Secret)
	if err != nil {
		return err
	}
	now := s.now()
	record := &extensionInstanceRecord{
		ID:              id,
		ContextID:       extension.ContextID,
		ContextKind:     contextKind(extension.ContextKind),
		Active:          true,
		VariantKey:      optionalString(extension.VariantKey),
		ConsentedScopes: scopesOrEmpty(extension.ConsentedScopes),
		Secret:          secret,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("context_id = EXCLUDED.context_id").
		Set("context_kind = EXCLUDED.context_kind").
		Set("active = EXCLUDED.active").
		Set("variant_key = EXCLUDED.variant_key").
		Set("consented_scopes = EXCLUDED.consented_scopes").
		Set("secret = EXCLUDED.secret").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: upsert extension instance: %w", err)
	}
	return nil
}

func (s *ExtensionStore) UpdateExtension(ctx context.Context, extension core.ExtensionToBeUpdated) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: extension store is not configured")
	}
	record := &extensionInstanceRecord{
		ID:              strings.TrimSpace(extension.ExtensionInstanceID),
		ContextID:       extension.ContextID,
		ContextKind:     contextKind(extension.ContextKind),
		Active:          extension.Enabled,
		VariantKey:      optionalString(extension.VariantKey),
		ConsentedScopes: scopesOrEmpty(extension.ConsentedScopes),
		UpdatedAt:       s.now(),
	}
	_, err := s.db.NewUpdate().
		Model(record).
		Column("context_id", "context_kind", "active", "variant_key", "consented_scopes", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: update extension instance: %w", err)
	}
	return nil
}

func (s *ExtensionStore) RotateSecret(ctx context.Context, extensionInstanceID string, secret string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: extension store is not configured")
	}
	sealed, err := s.sealSecret(ctx, secret)
	if err != nil {
		return err
	}
	_, err = s.db.NewUpdate().
		Model((*extensionInstanceRecord)(nil)).
		Set("secret = ?", sealed).
		Set("updated_at = ?", s.now()).
		Where("id = ?", strings.TrimSpace(extensionInstanceID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: rotate extension instance secret: %w", err)
	}
	return nil
}

func (s *ExtensionStore) RemoveInstance(ctx context.Context, extensionInstanceID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: extension store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*extensionInstanceRecord)(nil)).
		Where("id = ?", strings.TrimSpace(extensionInstanceID)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: remove extension instance: %w", err)
	}
	return nil
}

func (s *ExtensionStore) GetExtension(ctx context.Context, extensionInstanceID string) (core.ExtensionInstance, error) {
	if s == nil || s.repo == nil {
		return core.ExtensionInstance{}, fmt.Errorf("sqlstore: extension store is not configured")
	}
	id := strings.TrimSpace(extensionInstanceID)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ExtensionInstance{}, err
	}
	if len(records) == 0 {
		return core.ExtensionInstance{}, core.NewExtensionNotFoundError(id)
	}
	return s.toDomain(ctx, records[0])
}

// ListExtensions returns instances ordered by id. An empty contextID matches
// every context.
func (s *ExtensionStore) ListExtensions(ctx context.Context, contextID string) ([]core.ExtensionInstance, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: extension store is not configured")
	}
	criteria := []repository.SelectCriteria{repository.OrderBy("id ASC")}
	if trimmed := strings.TrimSpace(contextID); trimmed != "" {
		criteria = append(criteria, repository.SelectBy("context_id", "=", trimmed))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.ExtensionInstance, 0, len(records))
	for _, record := range records {
		instance, err := s.toDomain(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, instance)
	}
	return out, nil
}

func (s *ExtensionStore) toDomain(ctx context.Context, record *extensionInstanceRecord) (core.ExtensionInstance, error) {
	secret, err := s.openSecret(ctx, record.Secret)
	if err != nil {
		return core.ExtensionInstance{}, err
	}
	instance := core.ExtensionInstance{
		ID:              record.ID,
		ContextID:       record.ContextID,
		ContextKind:     core.ContextKind(record.ContextKind),
		ConsentedScopes: scopesOrEmpty(record.ConsentedScopes),
		Secret:          secret,
		Enabled:         record.Active,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
	if record.VariantKey != nil {
		instance.VariantKey = *record.VariantKey
	}
	return instance, nil
}

func (s *ExtensionStore) sealSecret(ctx context.Context, secret string) (string, error) {
	if s.secrets == nil || secret == "" {
		return secret, nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(secret))
	if err != nil {
		return "", fmt.Errorf("sqlstore: encrypt extension secret: %w", err)
	}
	return string(sealed), nil
}

func (s *ExtensionStore) openSecret(ctx context.Context, stored string) (string, error) {
	if s.secrets == nil || stored == "" {
		return stored, nil
	}
	plaintext, err := s.secrets.Decrypt(ctx, []byte(stored))
	if err != nil {
		return "", fmt.Errorf("sqlstore: decrypt extension secret: %w", err)
	}
	return string(plaintext), nil
}

func contextKind(kind core.ContextKind) string {
	if kind == "" {
		return string(core.ContextKindProject)
	}
	return string(kind)
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func scopesOrEmpty(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	return append([]string(nil), scopes...)
}
