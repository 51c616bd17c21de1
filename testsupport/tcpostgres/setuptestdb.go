//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/sequential/pkg/db/migrate"
	database "github.com/mpapenbr/sequential/pkg/db/postgres"
)

// SetupTestDB starts (or reuses) the test container and returns a pool
// on the migrated database
func SetupTestDB() *pgxpool.Pool {
	ctx := context.Background()
	container, err := SetupPostgres(ctx, "postgres", "password", "postgres",
		WithName("sequential-test"))
	if err != nil {
		log.Fatal(err)
	}
	dbURL, err := container.ConnectionURL(ctx)
	if err != nil {
		log.Fatal(err)
	}
	return setupWithURL(dbURL)
}

// SetupExternalTestDB uses the database referenced by TESTDB_URL
func SetupExternalTestDB() *pgxpool.Pool {
	return setupWithURL(os.Getenv("TESTDB_URL"))
}

func setupWithURL(dbURL string) *pgxpool.Pool {
	if err := migrate.MigrateDB(dbURL); err != nil {
		log.Fatal(err)
	}
	return database.InitWithURL(dbURL)
}

func ClearTelemetryBatchTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from telemetry_batch")
}

func ClearAllTables(pool *pgxpool.Pool) {
	ClearTelemetryBatchTable(pool)
}
