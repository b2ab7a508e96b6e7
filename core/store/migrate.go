package store

import (
	"context"
	"embed"

	"github.com/pressly/goose/v3"

	"aquatrace/core/utils"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// ApplyMigrations brings the schema up to date via goose, picking the
// migration set that matches the opened dialect. Safe to call on every boot;
// applied versions are tracked in goose_db_version.
func ApplyMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	dir := "migrations/sqlite"
	if db.Dialect() == DialectPostgres {
		dir = "migrations/postgres"
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(db.Dialect()); err != nil {
		return err
	}
	before, _ := goose.GetDBVersionContext(ctx, db.DB)
	if err := goose.UpContext(ctx, db.DB, dir); err != nil {
		return err
	}
	after, _ := goose.GetDBVersionContext(ctx, db.DB)
	if logger != nil && after != before {
		logger.Printf("DB migrated %d -> %d", before, after)
	}
	return nil
}
