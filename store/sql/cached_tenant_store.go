package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-turns/core"
)

const tenantCacheKeyPrefix = "go-turns::tenant::v1"

type tenantBackend interface {
	core.TenantStore
	core.TenantLister
}

// CachedTenantStore reads tenants through a go-repository-cache service.
// Every save, successful or lost to a version conflict, evicts the key so
// the optimistic retry loop reloads the stored version.
type CachedTenantStore struct {
	base  tenantBackend
	cache repositorycache.CacheService
}

func NewCachedTenantStore(base tenantBackend, cacheService repositorycache.CacheService) (*CachedTenantStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base tenant store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: tenant cache service is required")
	}
	return &CachedTenantStore{base: base, cache: cacheService}, nil
}

// TenantCacheKey is go-turns::tenant::v1::<tenant id>, the id path escaped.
func TenantCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: tenant id is required")
	}
	return tenantCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedTenantStore) Get(ctx context.Context, id string) (core.TenantRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.TenantRecord{}, fmt.Errorf("sqlstore: cached tenant store is not configured")
	}
	key, err := TenantCacheKey(id)
	if err != nil {
		return core.TenantRecord{}, core.ErrTenantNotFound
	}
	record, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.TenantRecord, error) {
		fetched, fetchErr := s.base.Get(ctx, id)
		if fetchErr != nil {
			return core.TenantRecord{}, fetchErr
		}
		return fetched.Clone(), nil
	})
	if err != nil {
		return core.TenantRecord{}, err
	}
	return record.Clone(), nil
}

func (s *CachedTenantStore) Save(ctx context.Context, record core.TenantRecord) (core.TenantRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.TenantRecord{}, fmt.Errorf("sqlstore: cached tenant store is not configured")
	}
	key, err := TenantCacheKey(record.ID)
	if err != nil {
		return core.TenantRecord{}, core.ErrTenantNotFound
	}
	saved, saveErr := s.base.Save(ctx, record)
	if saveErr != nil && !errors.Is(saveErr, core.ErrVersionConflict) {
		return core.TenantRecord{}, saveErr
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		return core.TenantRecord{}, err
	}
	if saveErr != nil {
		return core.TenantRecord{}, saveErr
	}
	return saved, nil
}

// List bypasses the cache.
func (s *CachedTenantStore) List(ctx context.Context) ([]core.TenantRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached tenant store is not configured")
	}
	return s.base.List(ctx)
}
