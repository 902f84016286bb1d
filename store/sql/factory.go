package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-turns/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db         *bun.DB
	tenantOpts []TenantStoreOption

	tenantStore     *TenantStore
	assignmentStore *AssignmentStore
	claimStore      *DeliveryClaimStore
}

// NewRepositoryFactory takes options applied to the tenant store it builds.
func NewRepositoryFactory(tenantOpts ...TenantStoreOption) *RepositoryFactory {
	return &RepositoryFactory{tenantOpts: tenantOpts}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, tenantOpts ...TenantStoreOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(tenantOpts...)
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, tenantOpts ...TenantStoreOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(tenantOpts...)
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// Build resolves the bun DB from a *bun.DB or anything with DB() *bun.DB
// (a go-persistence-bun client) and wires the stores.
func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.tenantStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) TenantStore() *TenantStore {
	if f == nil {
		return nil
	}
	return f.tenantStore
}

// CachedTenantStore wraps the tenant store with cacheService.
func (f *RepositoryFactory) CachedTenantStore(cacheService repositorycache.CacheService) (*CachedTenantStore, error) {
	if f == nil || f.tenantStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is not built")
	}
	return NewCachedTenantStore(f.tenantStore, cacheService)
}

func (f *RepositoryFactory) AssignmentStore() *AssignmentStore {
	if f == nil {
		return nil
	}
	return f.assignmentStore
}

func (f *RepositoryFactory) ClaimStore() core.IdempotencyClaimStore {
	if f == nil {
		return nil
	}
	return f.claimStore
}

func (f *RepositoryFactory) initStores() error {
	tenantStore, err := NewTenantStore(f.db, f.tenantOpts...)
	if err != nil {
		return err
	}
	assignmentStore, err := NewAssignmentStore(f.db)
	if err != nil {
		return err
	}
	claimStore, err := NewDeliveryClaimStore(f.db)
	if err != nil {
		return err
	}
	f.tenantStore = tenantStore
	f.assignmentStore = assignmentStore
	f.claimStore = claimStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
