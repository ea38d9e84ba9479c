package offlinequeue

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/betterqa-sync/agent-core/pkg/observability"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationTimeout = 10 * time.Second

// runMigrations applies every embedded migration to the sqlite3 database at
// path, up to the latest version. It is idempotent; a database already at
// the latest version returns nil.
func runMigrations(ctx context.Context, path string, o11y observability.Observability) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("offlinequeue: load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite3://"+path)
	if err != nil {
		return fmt.Errorf("offlinequeue: init migrator: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- m.Up() }()

	select {
	case <-ctxWithTimeout.Done():
		return fmt.Errorf("offlinequeue: migration timed out after %v: %w", migrationTimeout, ctxWithTimeout.Err())
	case err := <-errCh:
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			o11y.Logger().Error(ctx, "offline queue migration failed", observability.Error(err))
			return fmt.Errorf("offlinequeue: migrate up: %w", err)
		}
		return nil
	}
}
