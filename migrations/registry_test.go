package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	turns "github.com/goliatone/go-turns"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestFilesystems_ListsPairedVersions(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	want := []string{"00001_turns_core_schema", "00002_turns_delivery_claims"}
	for _, entry := range filesystems {
		if strings.Join(entry.Versions, ",") != strings.Join(want, ",") {
			t.Fatalf("expected %s versions %v, got %v", entry.Dialect, want, entry.Versions)
		}
	}
}

func TestFilesystems_RejectsMissingDownFile(t *testing.T) {
	source := fstest.MapFS{
		"data/sql/migrations/00001_x.up.sql":        {Data: []byte("SELECT 1;")},
		"data/sql/migrations/00001_x.down.sql":      {Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00001_x.up.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := Filesystems(source); err == nil || !strings.Contains(err.Error(), "no down file") {
		t.Fatalf("expected missing down file error, got %v", err)
	}

	source["data/sql/migrations/sqlite/00001_x.down.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}
	source["data/sql/migrations/00002_y.up.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}
	source["data/sql/migrations/00002_y.down.sql"] = &fstest.MapFile{Data: []byte("SELECT 1;")}
	if _, err := Filesystems(source); err == nil || !strings.Contains(err.Error(), "differ") {
		t.Fatalf("expected dialect version mismatch, got %v", err)
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite3":    DialectSQLite,
		"SQLite":     DialectSQLite,
		"postgres":   DialectPostgres,
		"postgresql": DialectPostgres,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("DialectForDriver(%q) = %q, %v; want %q", driver, got, err, want)
		}
	}
	if _, err := DialectForDriver("mysql"); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	var labels []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect)
		labels = append(labels, label)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
	if labels[0] != DefaultSourceLabel {
		t.Fatalf("expected default source label go-turns, got %q", labels[0])
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil register function")
	}
}

func TestMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := turns.GetCoreMigrationsFS()
	for _, name := range []string{"00001_turns_core_schema", "00002_turns_delivery_claims"} {
		paths := []string{
			"data/sql/migrations/" + name + ".up.sql",
			"data/sql/migrations/" + name + ".down.sql",
			"data/sql/migrations/sqlite/" + name + ".up.sql",
			"data/sql/migrations/sqlite/" + name + ".down.sql",
		}
		for _, migrationPath := range paths {
			content, err := fs.ReadFile(root, migrationPath)
			if err != nil {
				t.Fatalf("read migration %s: %v", migrationPath, err)
			}
			if strings.TrimSpace(string(content)) == "" {
				t.Fatalf("expected migration %s to have SQL content", migrationPath)
			}
		}
	}
}

func TestSQLiteCoreSchemaMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-turns-core?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	sqliteMigrations, err := fs.Sub(turns.GetCoreMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	ctx := context.Background()
	for _, migration := range []string{
		"00001_turns_core_schema.up.sql",
		"00002_turns_delivery_claims.up.sql",
	} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migration); err != nil {
			t.Fatalf("apply migration %s: %v", migration, err)
		}
	}

	for _, tableName := range []string{"turns_tenants", "turns_assignments", "turns_delivery_claims"} {
		if count := countSchemaObjects(t, db, "table", tableName); count != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	insertClaim := `INSERT INTO turns_delivery_claims (id, claim_key, claim_id, status) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertClaim, "c1", "T1:Ev1", "claim-1", "processing"); err != nil {
		t.Fatalf("insert claim: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertClaim, "c2", "T1:Ev1", "claim-2", "processing"); err == nil {
		t.Fatalf("expected unique claim_key violation")
	}

	for _, migration := range []string{
		"00002_turns_delivery_claims.down.sql",
		"00001_turns_core_schema.down.sql",
	} {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migration); err != nil {
			t.Fatalf("rollback migration %s: %v", migration, err)
		}
	}

	for _, tableName := range []string{"turns_tenants", "turns_assignments", "turns_delivery_claims"} {
		if count := countSchemaObjects(t, db, "table", tableName); count != 0 {
			t.Fatalf("expected table %s to be dropped after down migration", tableName)
		}
	}
	if count := countSchemaObjects(t, db, "index", "uq_turns_delivery_claims_key"); count != 0 {
		t.Fatalf("expected claim key index to be dropped")
	}
}

func countSchemaObjects(t *testing.T, db *sql.DB, kind string, name string) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?`,
		kind,
		name,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master for %s %s: %v", kind, name, err)
	}
	return count
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
