package advicestore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

// latestMigrationVersion must be bumped with every new migration file.
const latestMigrationVersion uint = 1

//go:embed migrations/*.sql
var sqlSchemas embed.FS

// ErrMigrationDowngrade is returned when the database is newer than this binary.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

// migrationLogger adapts slog to migrate.Logger.
type migrationLogger struct {
	log *slog.Logger
}

func (m *migrationLogger) Printf(format string, v ...any) {
	m.log.Info(fmt.Sprintf(strings.TrimRight(format, "\n"), v...))
}

func (m *migrationLogger) Verbose() bool {
	return false
}

// applyMigrations brings the sqlite schema up to latestMigrationVersion.
func applyMigrations(db *sql.DB, log *slog.Logger) error {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	source, err := httpfs.New(http.FS(sqlSchemas), "migrations")
	if err != nil {
		return err
	}
	mig, err := migrate.NewWithInstance("migrations", source, "sqlite3", driver)
	if err != nil {
		return err
	}
	mig.Log = &migrationLogger{log: log}

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state at version %d, manual intervention required", version)
	}
	if version > latestMigrationVersion {
		return fmt.Errorf("%w: db_version=%d latest_migration_version=%d", ErrMigrationDowngrade, version, latestMigrationVersion)
	}

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	log.Info("advice store schema ready", "previous_version", version, "latest_version", latestMigrationVersion)
	return nil
}
