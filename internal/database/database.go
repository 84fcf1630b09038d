// Package database persists classification history.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	infracontext "github.com/Siriusbar/SlopedIn/infrastructure/context"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 2
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute

	defaultSQLiteDSN = "file:slopedin.db?_busy_timeout=5000&_journal_mode=WAL"
)

var errMissingDSN = errors.New("database dsn is required for postgres")

// Config holds database configuration.
type Config struct {
	Enabled bool   `env:"DB_ENABLED" yaml:"enabled"`
	Driver  string `env:"DB_DRIVER"  yaml:"driver"`
	DSN     string `env:"DB_DSN"     yaml:"dsn"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.DSN == "" && c.Driver == DriverSQLite {
		c.DSN = defaultSQLiteDSN
	}
}

// Open connects, configures the pool and verifies the connection.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	cfg.SetDefaults()
	if cfg.DSN == "" {
		return nil, errMissingDSN
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(DefaultMaxOpenConns)
		db.SetMaxIdleConns(DefaultMaxIdleConns)
	}
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := infracontext.WithPingTimeout(ctx)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}

// Migrate creates the history table if it does not exist. Each item handle
// has at most one row.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.DriverName() == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS classification_history (
			id            %s,
			item_handle   TEXT NOT NULL,
			label         TEXT NOT NULL,
			score         DOUBLE PRECISION NOT NULL,
			raw_ranking   TEXT NOT NULL,
			text_length   INTEGER NOT NULL,
			classified_at TIMESTAMP NOT NULL
		)`, idColumn)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create classification_history: %w", err)
	}

	indexes := []struct{ name, stmt string }{
		{"classified_at", `CREATE INDEX IF NOT EXISTS idx_classification_history_classified_at
			ON classification_history (classified_at)`},
		{"item_handle", `CREATE UNIQUE INDEX IF NOT EXISTS idx_classification_history_item_handle
			ON classification_history (item_handle)`},
	}
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx.stmt); err != nil {
			return fmt.Errorf("failed to create %s index: %w", idx.name, err)
		}
	}
	return nil
}
