package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/security"
	"github.com/uptrace/bun"
)

// TenantStore persists tenant records with optimistic versioning: a save
// only lands when the stored version still equals record.Version.
type TenantStore struct {
	db      *bun.DB
	repo    repository.Repository[*tenantRecord]
	secrets core.SecretProvider
	now     func() time.Time
}

type TenantStoreOption func(*TenantStore)

// WithSecretProvider seals the auth column. Rows written without a
// provider are still read back as plain JSON.
func WithSecretProvider(provider core.SecretProvider) TenantStoreOption {
	return func(s *TenantStore) {
		s.secrets = provider
	}
}

func NewTenantStore(db *bun.DB, opts ...TenantStoreOption) (*TenantStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tenantRecord](db, tenantHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid tenant repository wiring: %w", err)
		}
	}
	store := &TenantStore{
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

func (s *TenantStore) Get(ctx context.Context, id string) (core.TenantRecord, error) {
	if s == nil || s.db == nil {
		return core.TenantRecord{}, fmt.Errorf("sqlstore: tenant store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.TenantRecord{}, core.ErrTenantNotFound
	}
	record := &tenantRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.TenantRecord{}, core.ErrTenantNotFound
		}
		return core.TenantRecord{}, err
	}
	return s.open(ctx, record)
}

// Save inserts a new tenant when record.Version is zero and otherwise
// updates the row guarded by its version. Losing either race returns
// core.ErrVersionConflict.
func (s *TenantStore) Save(ctx context.Context, record core.TenantRecord) (core.TenantRecord, error) {
	if s == nil || s.db == nil {
		return core.TenantRecord{}, fmt.Errorf("sqlstore: tenant store is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return core.TenantRecord{}, core.ErrTenantNotFound
	}
	now := s.now()
	row := newTenantRecord(record, now)
	expected := record.Version
	row.Version = expected + 1
	if err := s.seal(ctx, row); err != nil {
		return core.TenantRecord{}, err
	}

	if expected == 0 {
		if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return core.TenantRecord{}, core.ErrVersionConflict
			}
			return core.TenantRecord{}, err
		}
		out := row.toDomain()
		out.Auth = copyAnyMap(record.Auth)
		return out, nil
	}

	res, err := s.db.NewUpdate().
		Model(row).
		Column("auth", "workflows", "version", "updated_at").
		Where("id = ?", row.ID).
		Where("version = ?", expected).
		Exec(ctx)
	if err != nil {
		return core.TenantRecord{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.TenantRecord{}, err
	}
	if affected == 0 {
		return core.TenantRecord{}, core.ErrVersionConflict
	}
	stored, err := s.Get(ctx, row.ID)
	if err != nil {
		return core.TenantRecord{}, err
	}
	return stored, nil
}

func (s *TenantStore) List(ctx context.Context) ([]core.TenantRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: tenant store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("id ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]core.TenantRecord, 0, len(records))
	for _, record := range records {
		opened, err := s.open(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func (s *TenantStore) seal(ctx context.Context, row *tenantRecord) error {
	if s.secrets == nil {
		return nil
	}
	sealed, err := security.SealAuth(ctx, s.secrets, row.Auth)
	if err != nil {
		return err
	}
	row.Auth = sealed
	return nil
}

func (s *TenantStore) open(ctx context.Context, row *tenantRecord) (core.TenantRecord, error) {
	out := row.toDomain()
	auth, err := security.OpenAuth(ctx, s.secrets, out.Auth)
	if err != nil {
		return core.TenantRecord{}, err
	}
	out.Auth = auth
	return out, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
