package auth

import (
	"context"
	"embed"
	"io/fs"
	"path"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsFor returns the migration set matching the database dialect
func MigrationsFor(db *bun.DB) (*migrate.Migrations, error) {
	dir := "sqlite"
	switch db.Dialect().Name() {
	case dialect.PG:
		dir = "postgres"
	case dialect.SQLite:
	default:
		return nil, goerrors.New("unsupported database dialect", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"dialect": db.Dialect().Name().String()})
	}

	sub, err := fs.Sub(migrationsFS, path.Join("data/sql/migrations", dir))
	if err != nil {
		return nil, err
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(sub); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
	}
	return migrations, nil
}

// Migrate applies pending migrations and returns the applied group names
func Migrate(ctx context.Context, db *bun.DB) ([]string, error) {
	migrations, err := MigrationsFor(db)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init migrator")
	}

	if err := migrator.Lock(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to lock migrations")
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations")
	}

	if group.IsZero() {
		return nil, nil
	}

	names := make([]string, 0, len(group.Migrations))
	for _, m := range group.Migrations {
		names = append(names, m.Name)
	}
	return names, nil
}
