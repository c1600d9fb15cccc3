// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/codr1/grudge/internal/config"
	"github.com/codr1/grudge/internal/db/dbq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	sqlDriverCgo  = "sqlite3"
	sqlDriverPure = "sqlite"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know about.
	sqlx.BindDriver(sqlDriverPure, sqlx.QUESTION)
}

type DB struct {
	*sqlx.DB
	Queries *dbq.Queries
}

// New opens a SQLite database with the cgo driver, applies embedded
// migrations and returns a DB with queries bound to the connection.
func New(dataSourceName string) (*DB, error) {
	return open(config.DriverSQLite, dataSourceName)
}

// NewFromConfig creates the database directory when needed and opens the
// configured driver. "sqlite" uses mattn/go-sqlite3, "sqlite-pure" uses
// modernc.org/sqlite.
func NewFromConfig(cfg *config.Config) (*DB, error) {
	if _, err := SQLDriverName(cfg.Database.Driver); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Filename), 0755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}
	return open(cfg.Database.Driver, cfg.Database.Filename)
}

// SQLDriverName maps a configured driver to its database/sql name.
func SQLDriverName(driver string) (string, error) {
	switch driver {
	case config.DriverSQLite:
		return sqlDriverCgo, nil
	case config.DriverSQLitePure:
		return sqlDriverPure, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func open(driver, dataSourceName string) (*DB, error) {
	sqlName, err := SQLDriverName(driver)
	if err != nil {
		return nil, err
	}
	dsn := ensureForeignKeysEnabledDSN(dataSourceName)
	if sqlName == sqlDriverPure {
		dsn = ensurePurePragmasDSN(dataSourceName)
	}

	sqlDB, err := sqlx.Open(sqlName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// Single writer. Code running inside RunInTx must only use the tx-bound DB.
	sqlDB.SetMaxOpenConns(1)

	if err := runMigrations(sqlDB.DB, sqlName); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return &DB{
		DB:      sqlDB,
		Queries: dbq.New(sqlDB),
	}, nil
}

// ensureForeignKeysEnabledDSN adds `_fk=1` to a mattn/go-sqlite3 DSN if missing.
func ensureForeignKeysEnabledDSN(dataSourceName string) string {
	if strings.Contains(dataSourceName, "_fk=") {
		return dataSourceName
	}
	return appendDSNParam(dataSourceName, "_fk=1")
}

// ensurePurePragmasDSN enables foreign keys for modernc.org/sqlite and makes it
// write timestamps in the same layout as mattn/go-sqlite3.
func ensurePurePragmasDSN(dataSourceName string) string {
	if !strings.Contains(dataSourceName, "foreign_keys") {
		dataSourceName = appendDSNParam(dataSourceName, "_pragma=foreign_keys(1)")
	}
	if !strings.Contains(dataSourceName, "_time_format=") {
		dataSourceName = appendDSNParam(dataSourceName, "_time_format=sqlite")
	}
	return dataSourceName
}

func appendDSNParam(dataSourceName, param string) string {
	if strings.Contains(dataSourceName, "?") {
		return dataSourceName + "&" + param
	}
	return dataSourceName + "?" + param
}

// NewMigrator builds a migrate instance over the embedded migrations for an
// already opened database.
func NewMigrator(db *sql.DB, sqlDriverName string) (*migrate.Migrate, error) {
	var (
		driver database.Driver
		err    error
	)
	switch sqlDriverName {
	case sqlDriverPure:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("could not create migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("could not create source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, sqlDriverName, driver)
	if err != nil {
		return nil, fmt.Errorf("could not create migrate instance: %w", err)
	}
	return m, nil
}

func runMigrations(db *sql.DB, sqlDriverName string) error {
	m, err := NewMigrator(db, sqlDriverName)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// WithTx creates a new DB instance with the given transaction
func (db *DB) WithTx(tx *sqlx.Tx) *DB {
	return &DB{
		DB:      db.DB,
		Queries: dbq.New(tx),
	}
}

// BeginTx starts a transaction
func (db *DB) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	return tx, nil
}

// RunInTx runs the given function in a transaction
func (db *DB) RunInTx(ctx context.Context, fn func(*DB) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	txDB := db.WithTx(tx)
	if err := fn(txDB); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error rolling back: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing: %w", err)
	}

	return nil
}
