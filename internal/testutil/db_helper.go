// Package testutil provides shared helpers for integration tests: a
// containerized postgres, domain fixtures, and comparison assertions.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/Maken-HQ-Team/meetmate/internal/config"
	"github.com/Maken-HQ-Team/meetmate/internal/database"
	"github.com/Maken-HQ-Team/meetmate/internal/ratelimit"
)

// TestEnv is a migrated postgres instance running in a container. DSN is
// exposed so tests can attach a second connection, such as the realtime
// listener.
type TestEnv struct {
	DB  *database.DB
	DSN string
}

// SetupTestDB creates a PostgreSQL TestContainer, runs migrations, and
// returns the environment plus a cleanup function.
//
// Usage:
//
//	env, cleanup, err := testutil.SetupTestDB(ctx)
//	require.NoError(t, err)
//	defer cleanup()
func SetupTestDB(ctx context.Context) (*TestEnv, func(), error) {
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	logger := zap.NewNop()

	cfg := &config.DatabaseConfig{
		Host:         host,
		Port:         mappedPort.Port(),
		User:         "testuser",
		Password:     "testpass",
		Name:         "testdb",
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	db, err := database.NewDB(cfg, ratelimit.NewLimiter(logger), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// tests run from different directories; try the plausible paths
	migrationPaths := []string{
		"../database/migrations",
		"internal/database/migrations",
		"../../internal/database/migrations",
	}

	var migrationErr error
	migrated := false
	for _, path := range migrationPaths {
		if err := db.RunMigrations(path); err == nil {
			migrated = true
			break
		} else {
			migrationErr = err
		}
	}
	if !migrated {
		return nil, nil, fmt.Errorf("failed to run migrations from any path: %w", migrationErr)
	}

	cleanup := func() {
		if db != nil {
			_ = db.Close()
		}
		if pgContainer != nil {
			_ = pgContainer.Terminate(ctx)
		}
	}

	return &TestEnv{DB: db, DSN: cfg.GetDSN()}, cleanup, nil
}

// TruncateTables removes all rows from the domain tables, for cleaning up
// between test cases without recreating the database
func TruncateTables(ctx context.Context, db *database.DB) error {
	_, err := db.ExecContext(ctx,
		`TRUNCATE availability_windows, share_grants, profiles CASCADE`,
	)
	if err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}
