// Package migrations carries the SQL schema behind the optional Postgres
// audit store. Run it through bun/migrate, or feed SchemaFS to whatever
// migration runner the host already uses.
package migrations

import (
	"embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var schemaFS embed.FS

// SchemaFS exposes the raw SQL files for external migration runners.
var SchemaFS = schemaFS

// Registry holds this module's migrations in a bun/migrate registry.
var Registry = migrate.NewMigrations()

func init() {
	if err := Registry.Discover(schemaFS); err != nil {
		panic("migrations: discover embedded SQL: " + err.Error())
	}
}

// NewMigrator builds a bun migrator over this module's registry.
func NewMigrator(db *bun.DB, opts ...migrate.MigratorOption) *migrate.Migrator {
	return migrate.NewMigrator(db, Registry, opts...)
}
