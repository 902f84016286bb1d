package sqlstore

import (
	"time"

	"github.com/goliatone/go-turns/rotation"
	"github.com/uptrace/bun"
)

type tenantRecord struct {
	bun.BaseModel `bun:"table:turns_tenants,alias:tt"`

	ID        string                    `bun:"id,pk"`
	Auth      map[string]any            `bun:"auth,type:jsonb,notnull"`
	Workflows map[string]rotation.State `bun:"workflows,type:jsonb,notnull"`
	Version   int                       `bun:"version,notnull"`
	CreatedAt time.Time                 `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time                 `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type assignmentRecord struct {
	bun.BaseModel `bun:"table:turns_assignments,alias:ta"`

	ID         string    `bun:"id,pk"`
	TenantID   string    `bun:"tenant_id,notnull"`
	WorkflowID string    `bun:"workflow_id,notnull"`
	UserID     string    `bun:"user_id,notnull"`
	Action     string    `bun:"action,notnull"`
	SkipDepth  int       `bun:"skip_depth,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryClaimRecord struct {
	bun.BaseModel `bun:"table:turns_delivery_claims,alias:tdc"`

	ID             string     `bun:"id,pk"`
	ClaimKey       string     `bun:"claim_key,notnull"`
	ClaimID        string     `bun:"claim_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LeaseMillis    int64      `bun:"lease_ms,notnull"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	RetryAt        *time.Time `bun:"retry_at,nullzero"`
	LastError      string     `bun:"last_error"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
