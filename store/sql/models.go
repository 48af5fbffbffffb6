package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type extensionInstanceRecord struct {
	bun.BaseModel `bun:"table:extension_instances,alias:ei"`

	ID              string    `bun:"id,pk"`
	ContextID       string    `bun:"context_id,notnull"`
	ContextKind     string    `bun:"context_kind,notnull"`
	Active          bool      `bun:"active,notnull"`
	VariantKey      *string   `bun:"variant_key"`
	ConsentedScopes []string  `bun:"consented_scopes,type:jsonb,notnull"`
	Secret          string    `bun:"secret,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:webhook_deliveries,alias:wd"`

	ID             string     `bun:"id,pk"`
	DeliveryKey    string     `bun:"delivery_key,notnull"`
	ClaimID        string     `bun:"claim_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	NextAttemptAt  *time.Time `bun:"next_attempt_at,nullzero"`
	CompletedAt    *time.Time `bun:"completed_at,nullzero"`
	LastError      string     `bun:"last_error"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
