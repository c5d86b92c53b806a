// Package util provides shared database helpers for integration tests.
package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/groundline/groundline/pkg/database"
)

var (
	// Shared container config for all tests in local dev.
	sharedCfg     database.Config
	containerOnce sync.Once
	containerErr  error
)

// SetupTestDatabase creates an isolated database for this test, runs the
// embedded migrations against it, and returns a connected client.
// Integration tests are gated: set GROUNDLINE_INTEGRATION=1 to run them.
// - CI: connects to an external PostgreSQL from CI_DATABASE_* env vars
// - Local: uses a shared pgvector testcontainer (started once per package)
func SetupTestDatabase(t *testing.T) *database.Client {
	if os.Getenv("GROUNDLINE_INTEGRATION") == "" {
		t.Skip("set GROUNDLINE_INTEGRATION=1 to run database integration tests")
	}

	ctx := context.Background()
	baseCfg := getOrCreateSharedDatabase(t)

	// Per-test database for isolation; migrations run fresh each time.
	dbName := GenerateDatabaseName(t)
	adminConn, err := pgx.Connect(ctx, baseCfg.DSN())
	require.NoError(t, err)
	_, err = adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, adminConn.Close(ctx))
	require.NoError(t, err)

	testCfg := baseCfg
	testCfg.Database = dbName
	testCfg.MaxConns = 5
	testCfg.MinConns = 1

	client, err := database.NewClient(ctx, testCfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		conn, err := pgx.Connect(context.Background(), baseCfg.DSN())
		if err != nil {
			t.Logf("Warning: could not connect to drop database %s: %v", dbName, err)
			return
		}
		defer func() { _ = conn.Close(context.Background()) }()
		if _, err := conn.Exec(context.Background(),
			fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName)); err != nil {
			t.Logf("Warning: failed to drop database %s: %v", dbName, err)
		}
	})

	return client
}

// getOrCreateSharedDatabase returns config for the shared server.
// In CI, uses CI_DATABASE_* env vars. Locally, starts one pgvector
// container per package.
func getOrCreateSharedDatabase(t *testing.T) database.Config {
	if host := os.Getenv("CI_DATABASE_HOST"); host != "" {
		port, err := strconv.Atoi(os.Getenv("CI_DATABASE_PORT"))
		require.NoError(t, err, "CI_DATABASE_PORT must be a port number")
		return database.Config{
			Host:     host,
			Port:     port,
			User:     os.Getenv("CI_DATABASE_USER"),
			Password: os.Getenv("CI_DATABASE_PASSWORD"),
			Database: os.Getenv("CI_DATABASE_NAME"),
			SSLMode:  "disable",
		}
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared pgvector testcontainer for all tests")

		// pgvector image: migrations need CREATE EXTENSION vector.
		pgContainer, err := postgres.Run(ctx,
			"pgvector/pgvector:pg17",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		host, err := pgContainer.Host(ctx)
		if err != nil {
			containerErr = fmt.Errorf("failed to resolve container host: %w", err)
			return
		}
		port, err := pgContainer.MappedPort(ctx, "5432/tcp")
		if err != nil {
			containerErr = fmt.Errorf("failed to resolve container port: %w", err)
			return
		}

		sharedCfg = database.Config{
			Host:     host,
			Port:     port.Int(),
			User:     "test",
			Password: "test",
			Database: "test",
			SSLMode:  "disable",
		}
		t.Logf("Shared container ready: %s:%d", host, port.Int())
	})

	require.NoError(t, containerErr, "Failed to setup shared test container")
	return sharedCfg
}

// GenerateDatabaseName creates a unique, PostgreSQL-safe database name.
// Format: test_<sanitized_test_name>_<random_hex>
func GenerateDatabaseName(t *testing.T) string {
	testName := strings.ToLower(t.Name())
	testName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, testName)

	// Stay under PostgreSQL's 63 char identifier limit.
	if len(testName) > 40 {
		testName = testName[:40]
	}

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		t.Fatalf("failed to generate random bytes for database name: %v", err)
	}
	return fmt.Sprintf("test_%s_%s", testName, hex.EncodeToString(randomBytes))
}
