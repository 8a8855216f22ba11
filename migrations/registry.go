// Package migrations applies the embedded ingest schema through
// go-persistence-bun. PostgreSQL files live at data/sql/migrations and the
// SQLite variant under its sqlite/ subdirectory.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"
	ingest "github.com/wina-futureobjects/track-futura-new-sub007"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootPath = "data/sql/migrations"
)

// Source is the migration directory for one dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// NormalizeDialect maps config and driver spellings onto a supported
// dialect.
func NormalizeDialect(dialect string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
}

// Sources resolves both dialect trees from fsys, or from the embedded schema
// when fsys is nil. Every tree must hold at least one *.up.sql file.
func Sources(fsys fs.FS) ([]Source, error) {
	if fsys == nil {
		fsys = ingest.GetMigrationsFS()
	}
	base, err := fs.Sub(fsys, rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s not found: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
	}
	sources := []Source{
		{Dialect: DialectPostgres, Path: rootPath, FS: base},
		{Dialect: DialectSQLite, Path: rootPath + "/sqlite", FS: sqliteFS},
	}
	for _, src := range sources {
		ups, err := fs.Glob(src.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", src.Path, err)
		}
		if len(ups) == 0 {
			return nil, fmt.Errorf("migrations: %s has no *.up.sql files", src.Path)
		}
	}
	return sources, nil
}

// For returns the embedded source for dialect.
func For(dialect string) (Source, error) {
	normalized, err := NormalizeDialect(dialect)
	if err != nil {
		return Source{}, err
	}
	sources, err := Sources(nil)
	if err != nil {
		return Source{}, err
	}
	for _, src := range sources {
		if src.Dialect == normalized {
			return src, nil
		}
	}
	return Source{}, fmt.Errorf("migrations: no source for %s", normalized)
}

// Apply registers the dialect's migrations on client and runs every pending
// one.
func Apply(ctx context.Context, client *persistence.Client, dialect string) error {
	if client == nil {
		return fmt.Errorf("migrations: persistence client is required")
	}
	src, err := For(dialect)
	if err != nil {
		return err
	}
	client.RegisterSQLMigrations(src.FS)
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: apply %s: %w", src.Dialect, err)
	}
	return nil
}
