package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger/ledgertest"
	"github.com/cory-johannsen/crypdoebucks/internal/storage/postgres"
	"github.com/cory-johannsen/crypdoebucks/internal/testutil"
)

func TestLedgerStore(t *testing.T) {
	db := testutil.NewPostgresLedger(t)

	t.Run("Health", func(t *testing.T) {
		assert.NoError(t, db.Pool.Health(context.Background(), 5*time.Second))
	})

	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		db.Reset(t)
		return db.Store
	})

	t.Run("SchemaVersion", func(t *testing.T) {
		m, err := postgres.NewMigrator(db.Config.DSN())
		require.NoError(t, err)
		defer func() { _ = m.Close() }()
		v, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(1), v)
		assert.False(t, dirty)
	})
}
