package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/platform/postgres"
	"github.com/phrazzld/genrelay/internal/redact"
)

// migrations run once per test binary; every database handle afterwards
// shares the migrated schema.
var (
	migrateOnce sync.Once
	migrateErr  error
)

// GetTestDBWithT opens a connection to the test database, applies all
// migrations on first use, and registers cleanup with t. The test is skipped
// when no database URL is configured.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("Skipping integration test - set one of " + strings.Join(databaseURLEnvVars, ", "))
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		t.Fatalf("Failed to open test database: %s", redact.Error(err))
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("%v", formatDBConnectionError(err, dbURL))
	}

	migrateOnce.Do(func() {
		migrateErr = postgres.Migrate(ctx, db, "up", logger.NopLogger())
	})
	if migrateErr != nil {
		t.Fatalf("Failed to migrate test database: %v", migrateErr)
	}

	return db
}

// formatDBConnectionError builds a connection failure message with the URL
// credentials masked.
func formatDBConnectionError(err error, dbURL string) error {
	msg := fmt.Sprintf("database connection failed: %s (url: %s)", redact.Error(err), redact.String(dbURL))
	if isCIEnvironment() {
		msg += "; check that the CI database service is running and reachable"
	}
	return fmt.Errorf("%s", msg)
}
