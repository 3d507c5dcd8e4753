package data

import (
	"context"
	"database/sql"

	"github.com/target/paper-digest/internal/migrate"
)

// RunMigrations applies the embedded digest_jobs schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}
