// Package testutil starts throwaway PostgreSQL ledgers for storage tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/crypdoebucks/internal/config"
	"github.com/cory-johannsen/crypdoebucks/internal/storage/postgres"
)

const (
	postgresImage = "postgres:16-alpine"
	postgresCreds = "bucks"
)

// PostgresLedger is a migrated ledger database inside a container. One
// instance is shared by the subtests of a test; Reset empties it between them.
type PostgresLedger struct {
	Pool   *postgres.Pool
	Store  *postgres.LedgerStore
	Config config.DatabaseConfig
}

// NewPostgresLedger starts a container, applies every ledger migration and
// connects a store. Teardown is registered with t.Cleanup.
//
// Postcondition: Returns an empty, migrated ledger, or skips the test under
// -short or when no container provider is reachable.
func NewPostgresLedger(t *testing.T) *PostgresLedger {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	start := time.Now()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     postgresCreds,
				"POSTGRES_PASSWORD": postgresCreds,
				"POSTGRES_DB":       postgresCreds,
			},
			// The server restarts once after initdb; the second line is the real one.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting %s: %v", postgresImage, err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            postgresCreds,
		Password:        postgresCreds,
		Name:            postgresCreds,
		SSLMode:         "disable",
		MaxConns:        8,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	m, err := postgres.NewMigrator(cfg.DSN())
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	err = m.Up(0)
	_ = m.Close()
	if err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("connecting to ledger database: %v", err)
	}
	t.Cleanup(pool.Close)

	t.Logf("postgres ledger ready [%s]", time.Since(start))
	return &PostgresLedger{
		Pool:   pool,
		Store:  postgres.NewLedgerStore(pool.DB()),
		Config: cfg,
	}
}

// Reset deletes every buck and event and zeroes the ledger counters.
func (l *PostgresLedger) Reset(t *testing.T) {
	t.Helper()
	_, err := l.Pool.DB().Exec(context.Background(), `
		TRUNCATE bucks, events;
		UPDATE ledger_state SET next_token_id = 0, total_does = 0, last_event_seq = 0;`)
	if err != nil {
		t.Fatalf("resetting ledger: %v", err)
	}
}
