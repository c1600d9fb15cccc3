package db_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/codr1/grudge/internal/config"
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
)

func openFromConfig(t *testing.T, driver string) *appdb.DB {
	t.Helper()

	cfg := &config.Config{}
	cfg.Database.Driver = driver
	cfg.Database.Filename = filepath.Join(t.TempDir(), "nested", "grudge.db")

	database, err := appdb.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestNewFromConfigDrivers(t *testing.T) {
	for _, driver := range []string{config.DriverSQLite, config.DriverSQLitePure} {
		t.Run(driver, func(t *testing.T) {
			database := openFromConfig(t, driver)
			ctx := context.Background()

			var fk int
			if err := database.QueryRowContext(ctx, "PRAGMA foreign_keys;").Scan(&fk); err != nil {
				t.Fatalf("query foreign_keys: %v", err)
			}
			if fk != 1 {
				t.Fatalf("expected foreign keys enabled, got %d", fk)
			}

			created, err := database.Queries.CreateUser(ctx, dbq.CreateUserParams{
				Email:       "driver@test.com",
				DisplayName: "Driver",
			})
			if err != nil {
				t.Fatalf("create user: %v", err)
			}
			got, err := database.Queries.GetUserByID(ctx, created.ID)
			if err != nil {
				t.Fatalf("get user: %v", err)
			}
			if got.CreatedAt.IsZero() || time.Since(got.CreatedAt) > time.Minute {
				t.Fatalf("expected created_at to round-trip, got %v", got.CreatedAt)
			}
		})
	}
}

func TestNewFromConfigRejectsUnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Driver = "postgres"
	cfg.Database.Filename = filepath.Join(t.TempDir(), "grudge.db")

	if _, err := appdb.NewFromConfig(cfg); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	database := openFromConfig(t, config.DriverSQLite)
	ctx := context.Background()
	boom := errors.New("boom")

	err := database.RunInTx(ctx, func(txdb *appdb.DB) error {
		if _, err := txdb.Queries.CreateUser(ctx, dbq.CreateUserParams{
			Email:       "rollback@test.com",
			DisplayName: "Rollback",
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}

	if _, err := database.Queries.GetUserByEmail(ctx, "rollback@test.com"); err == nil {
		t.Fatal("expected user insert to be rolled back")
	}
}

func TestMigratorReportsVersion(t *testing.T) {
	database := openFromConfig(t, config.DriverSQLite)

	sqlName, err := appdb.SQLDriverName(config.DriverSQLite)
	if err != nil {
		t.Fatalf("driver name: %v", err)
	}
	m, err := appdb.NewMigrator(database.DB.DB, sqlName)
	if err != nil {
		t.Fatalf("new migrator: %v", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version < 1 || dirty {
		t.Fatalf("expected clean version >= 1, got %d dirty=%v", version, dirty)
	}
}
