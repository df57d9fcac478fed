// Package jobdb persists actions, jobs and cached point values in SQLite.
// It is the only writer of the bridge database.
package jobdb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/NotCoffee418/panel_bridge/pkg/logger"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrJobFinalized is returned when saving over a job that already finished.
var ErrJobFinalized = errors.New("job already finished")

type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Open connects to the database at path and applies pending migrations.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open job database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to job database: %w", err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)

	// Fail early if the migration did not leave a usable schema.
	if _, err := db.Exec("SELECT 1 FROM jobs LIMIT 1;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("job database schema missing after migration: %w", err)
	}

	log.Info("job database ready", "path", path)
	return &Store{db: db, logger: log}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}
