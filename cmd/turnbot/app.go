package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-turns/core"
	turnsmigrations "github.com/goliatone/go-turns/migrations"
	"github.com/goliatone/go-turns/security"
	sqlstore "github.com/goliatone/go-turns/store/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool {
	return c.debug
}

func (c persistenceConfig) GetDriver() string {
	return c.driver
}

func (c persistenceConfig) GetServer() string {
	return c.server
}

func (c persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func (c persistenceConfig) GetOtelIdentifier() string {
	return "go-turns"
}

// stores bundles the SQL-backed collaborators every subcommand needs.
type stores struct {
	client  *persistence.Client
	factory *sqlstore.RepositoryFactory
	tenants core.TenantStore
}

func (s *stores) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func openPersistence(cfg core.StoreConfig) (*persistence.Client, string, error) {
	migrationDialect, err := turnsmigrations.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, "", fmt.Errorf("turnbot: unsupported store driver %q", cfg.Driver)
	}
	var driver string
	var dialect schema.Dialect
	if migrationDialect == turnsmigrations.DialectSQLite {
		driver = "sqlite3"
		dialect = sqlitedialect.New()
	} else {
		driver = "postgres"
		dialect = pgdialect.New()
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("turnbot: open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{
		driver: driver,
		server: cfg.DSN,
		debug:  cfg.Debug,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("turnbot: persistence client: %w", err)
	}
	return client, migrationDialect, nil
}

func registerMigrations(ctx context.Context, client *persistence.Client, dialect string) error {
	_, err := turnsmigrations.Register(ctx, func(_ context.Context, target string, _ string, fsys fs.FS) error {
		if target != dialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, turnsmigrations.WithValidationTargets(dialect))
	return err
}

// openStores connects, migrates and wires the tenant store behind the
// repository cache when store.cache_ttl is positive.
func openStores(ctx context.Context, cfg core.Config) (*stores, error) {
	client, dialect, err := openPersistence(cfg.Store)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*stores, error) {
		_ = client.Close()
		return nil, err
	}
	if err := registerMigrations(ctx, client, dialect); err != nil {
		return fail(fmt.Errorf("turnbot: register migrations: %w", err))
	}
	if err := client.Migrate(ctx); err != nil {
		return fail(fmt.Errorf("turnbot: migrate: %w", err))
	}
	var tenantOpts []sqlstore.TenantStoreOption
	if key := strings.TrimSpace(cfg.Store.SecretKey); key != "" {
		secrets, err := security.NewAppKeySecretProviderFromString(key)
		if err != nil {
			return fail(fmt.Errorf("turnbot: secret key: %w", err))
		}
		tenantOpts = append(tenantOpts, sqlstore.WithSecretProvider(secrets))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, tenantOpts...)
	if err != nil {
		return fail(err)
	}

	var tenants core.TenantStore = factory.TenantStore()
	if cfg.Store.CacheTTL > 0 {
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = cfg.Store.CacheTTL
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			return fail(fmt.Errorf("turnbot: tenant cache: %w", err))
		}
		cached, err := factory.CachedTenantStore(cacheService)
		if err != nil {
			return fail(err)
		}
		tenants = cached
	}
	return &stores{client: client, factory: factory, tenants: tenants}, nil
}

func newTurnService(cfg core.Config, st *stores, extra ...core.Option) (*core.Service, error) {
	opts := []core.Option{
		core.WithTenantStore(st.tenants),
		core.WithAssignmentRecorder(st.factory.AssignmentStore()),
	}
	opts = append(opts, extra...)
	return core.NewService(cfg, opts...)
}
