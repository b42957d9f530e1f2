package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger/ledgertest"
	"github.com/cory-johannsen/crypdoebucks/internal/storage/sqlite"
)

func openStore(t *testing.T, path string) *sqlite.LedgerStore {
	t.Helper()
	s, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLedgerStore(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		return openStore(t, filepath.Join(t.TempDir(), "ledger.db"))
	})
}

func TestOpen_ReopensExistingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	first, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Update(ctx, func(tx ledger.Tx) error {
		id, err := tx.NextID(ctx)
		if err != nil {
			return err
		}
		return tx.MintTo(ctx, "0xuser1", id, buck.Buck{Points: 14, Does: 69})
	}))
	require.NoError(t, first.Close())

	second := openStore(t, path)
	require.NoError(t, second.Health(ctx))
	require.NoError(t, second.View(ctx, func(tx ledger.Tx) error {
		owner, err := tx.OwnerOf(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, buck.AccountID("0xuser1"), owner)
		supply, err := tx.TotalDoes(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(69), supply)
		return nil
	}))
	require.NoError(t, second.Update(ctx, func(tx ledger.Tx) error {
		id, err := tx.NextID(ctx)
		assert.Equal(t, buck.TokenID(1), id)
		return err
	}))
}

func TestOpen_RejectsMissingPath(t *testing.T) {
	_, err := sqlite.Open(context.Background(), " ")
	assert.Error(t, err)
	_, err = sqlite.Open(context.Background(), ":memory:")
	assert.Error(t, err)
}

func TestNewMigrator_UpDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	mg, err := sqlite.NewMigrator(path)
	require.NoError(t, err)
	defer func() { _ = mg.Close() }()

	v, dirty, err := mg.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	require.NoError(t, mg.Up(0))
	require.NoError(t, mg.Up(0), "re-applying is a no-op")
	v, _, err = mg.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	require.NoError(t, mg.Down(0))
	v, _, err = mg.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
}
