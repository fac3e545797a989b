// Package integrationtest provides db helpers used in integration tests.
//
// The helpers expect a PostgreSQL database migrated with db/migration and reachable
// through DB_SOURCE of configs/app.env or the environment.
package integrationtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-points/cmd/httpserver"
	"github.com/go-petr/pet-points/internal/domain"
	"github.com/go-petr/pet-points/internal/pointrepo"
	"github.com/go-petr/pet-points/pkg/configpkg"
	"github.com/go-petr/pet-points/pkg/dbpkg"
	"github.com/go-petr/pet-points/pkg/randompkg"

	_ "github.com/lib/pq"
)

// LoadConfig reads the configuration and switches the store to PostgreSQL.
func LoadConfig(t *testing.T) configpkg.Config {
	t.Helper()

	config, err := configpkg.Load("../../configs")
	if err != nil {
		t.Fatalf(`configpkg.Load("../../configs") returned error: %v`, err)
	}

	config.StoreDriver = configpkg.StorePostgres
	config.SeedUsers = nil

	if err := config.Validate(); err != nil {
		t.Skipf("postgres is not configured: %v", err)
	}

	return config
}

// SetupServer returns test server that cleans up database after each integration test.
func SetupServer(t *testing.T) *httpserver.Server {
	t.Helper()

	config := LoadConfig(t)

	server, err := httpserver.New(zerolog.Nop(), config)
	if err != nil {
		t.Fatalf(`httpserver.New(logger, config) returned error: %v`, err)
	}

	t.Cleanup(func() {
		Flush(t, server.DB)

		if err := server.Close(); err != nil {
			t.Fatalf("server cleanup failed. err: %v", err)
		}
	})

	return server
}

// Flush flushes all point tables without droping.
func Flush(t *testing.T, db *sql.DB) {
	t.Helper()

	if _, err := db.Exec(`TRUNCATE TABLE point_histories, user_points RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

// SetupDB sets up connection with database for testing and then cleans it.
func SetupDB(t *testing.T) *sql.DB {
	t.Helper()

	config := LoadConfig(t)

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	t.Cleanup(func() {
		Flush(t, db)

		if err := db.Close(); err != nil {
			t.Fatalf("db cleanup failed. err: %v", err)
		}
	})

	return db
}

// SetupTX sets up a database transaction to be used in tests.
//
// Once the tests are done it will rollback the transaction.
func SetupTX(t *testing.T) *sql.Tx {
	t.Helper()

	config := LoadConfig(t)

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("db.Begin() failed: %v", err)
	}

	t.Cleanup(func() {
		if err := tx.Rollback(); err != nil {
			t.Fatalf("tx.Rollback() failed: %v", err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("db.Close() failed: %v", err)
		}
	})

	return tx
}

// SeedUserPoint opens a random user inside a test transaction.
func SeedUserPoint(t *testing.T, tx dbpkg.SQLInterface) domain.UserPoint {
	t.Helper()

	userID := randompkg.UserID()

	up, err := pointrepo.NewTxRepoPGS(tx).Create(context.Background(), userID)
	if err != nil {
		t.Fatalf("pointRepo.Create(context.Background(), %d) returned error: %v", userID, err)
	}

	return up
}
