// Package ledgertest holds a conformance suite every ledger.Store backend
// must pass.
package ledgertest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/game/combat"
	"github.com/cory-johannsen/crypdoebucks/internal/game/dice"
	"github.com/cory-johannsen/crypdoebucks/internal/game/ruleset"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

const (
	admin = buck.AccountID("0xdeployer")
	user1 = buck.AccountID("0xuser1")
	user2 = buck.AccountID("0xuser2")
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) ledger.Store

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Run exercises newStore against the ledger.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("MintAndReadBack", func(t *testing.T) { mintAndReadBack(t, newStore(t)) })
	t.Run("UnknownIDs", func(t *testing.T) { unknownIDs(t, newStore(t)) })
	t.Run("DuplicateMint", func(t *testing.T) { duplicateMint(t, newStore(t)) })
	t.Run("FailedUpdateWritesNothing", func(t *testing.T) { failedUpdateWritesNothing(t, newStore(t)) })
	t.Run("ViewRejectsWrites", func(t *testing.T) { viewRejectsWrites(t, newStore(t)) })
	t.Run("EventsRoundTrip", func(t *testing.T) { eventsRoundTrip(t, newStore(t)) })
	t.Run("StagedEventsVisibleInUpdate", func(t *testing.T) { stagedEventsVisible(t, newStore(t)) })
	t.Run("HooksRunInOrderAfterCommit", func(t *testing.T) { hooksRunInOrder(t, newStore(t)) })
	t.Run("MinterAndEngine", func(t *testing.T) { minterAndEngine(t, newStore(t)) })
}

func mintAndReadBack(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		id, err := tx.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, buck.TokenID(0), id)
		return tx.MintTo(ctx, user1, id, buck.Buck{Points: 14, FightingStyle: 1, Does: 69})
	}))

	require.NoError(t, store.View(ctx, func(tx ledger.Tx) error {
		b, err := tx.GetBuck(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, buck.Buck{Points: 14, FightingStyle: 1, Does: 69}, b)

		owner, err := tx.OwnerOf(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, user1, owner)

		bal, err := tx.BalanceOf(ctx, user1, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), bal)
		bal, err = tx.BalanceOf(ctx, user2, 0)
		require.NoError(t, err)
		assert.Zero(t, bal)

		supply, err := tx.TotalDoes(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(69), supply)
		return nil
	}))

	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		id, err := tx.NextID(ctx)
		assert.Equal(t, buck.TokenID(1), id)
		return err
	}))
}

func unknownIDs(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		_, err := tx.GetBuck(ctx, 42)
		assert.ErrorIs(t, err, buck.ErrNotFound)
		_, err = tx.OwnerOf(ctx, 42)
		assert.ErrorIs(t, err, buck.ErrNotFound)
		assert.ErrorIs(t, tx.PutBuck(ctx, 42, buck.Buck{}), buck.ErrNotFound)
		bal, err := tx.BalanceOf(ctx, user1, 42)
		require.NoError(t, err)
		assert.Zero(t, bal)
		return nil
	}))
}

func duplicateMint(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		return tx.MintTo(ctx, user1, 7, buck.Buck{Does: 1})
	}))
	err := store.Update(ctx, func(tx ledger.Tx) error {
		return tx.MintTo(ctx, user2, 7, buck.Buck{Does: 1})
	})
	assert.ErrorIs(t, err, buck.ErrAlreadyMinted)

	require.NoError(t, store.View(ctx, func(tx ledger.Tx) error {
		owner, err := tx.OwnerOf(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, user1, owner)
		supply, err := tx.TotalDoes(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), supply)
		return nil
	}))
}

func failedUpdateWritesNothing(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	hookRan := false
	err := store.Update(ctx, func(tx ledger.Tx) error {
		id, err := tx.NextID(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.MintTo(ctx, user1, id, buck.Buck{Does: 5}))
		require.NoError(t, tx.AppendEvent(ctx, ledger.NewBuckCreated(time.Now(), ledger.NewBuckEvent{ID: id, To: user1, Does: 5})))
		tx.AfterCommit(func() { hookRan = true })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, hookRan)

	require.NoError(t, store.View(ctx, func(tx ledger.Tx) error {
		_, err := tx.GetBuck(ctx, 0)
		assert.ErrorIs(t, err, buck.ErrNotFound)
		supply, err := tx.TotalDoes(ctx)
		require.NoError(t, err)
		assert.Zero(t, supply)
		events, err := tx.Events(ctx, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, events)
		return nil
	}))
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		id, err := tx.NextID(ctx)
		assert.Equal(t, buck.TokenID(0), id)
		return err
	}))
}

func viewRejectsWrites(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	err := store.View(ctx, func(tx ledger.Tx) error {
		_, err := tx.NextID(ctx)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrReadOnly)
	err = store.View(ctx, func(tx ledger.Tx) error {
		return tx.MintTo(ctx, user1, 0, buck.Buck{})
	})
	assert.ErrorIs(t, err, ledger.ErrReadOnly)
}

func eventsRoundTrip(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	seed := make([]byte, dice.SeedSize)
	seed[0] = 0xab
	mint := ledger.NewBuckCreated(at, ledger.NewBuckEvent{ID: 0, To: user1, Points: 14, Does: 69})
	fight := ledger.FightResolved(at, ledger.FightEvent{
		AttackerID: 0, DefenderID: 1, DoesMoved: buck.DrawSentinel, Outcome: buck.Draw, Seed: seed,
	})
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		if err := tx.AppendEvent(ctx, mint); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, fight)
	}))
	assert.Equal(t, uint64(1), mint.Seq)
	assert.Equal(t, uint64(2), fight.Seq)

	var events, tail []ledger.Event
	require.NoError(t, store.View(ctx, func(tx ledger.Tx) error {
		var err error
		if events, err = tx.Events(ctx, 0, 10); err != nil {
			return err
		}
		tail, err = tx.Events(ctx, 1, 10)
		return err
	}))
	require.Len(t, events, 2)
	assert.Equal(t, mint.ID, events[0].ID)
	assert.Equal(t, ledger.EventNewBuck, events[0].Kind)
	require.NotNil(t, events[0].NewBuck)
	assert.Equal(t, *mint.NewBuck, *events[0].NewBuck)
	assert.Nil(t, events[0].Fight)
	assert.True(t, at.Equal(events[0].At))

	assert.Equal(t, ledger.EventFight, events[1].Kind)
	require.NotNil(t, events[1].Fight)
	assert.Equal(t, *fight.Fight, *events[1].Fight)
	assert.Nil(t, events[1].NewBuck)

	require.Len(t, tail, 1)
	assert.Equal(t, uint64(2), tail[0].Seq)
}

func stagedEventsVisible(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		return tx.AppendEvent(ctx, ledger.NewBuckCreated(at, ledger.NewBuckEvent{ID: 0, To: user1, Does: 1}))
	}))
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		staged := ledger.NewBuckCreated(at, ledger.NewBuckEvent{ID: 1, To: user2, Does: 2})
		require.NoError(t, tx.AppendEvent(ctx, staged))

		events, err := tx.Events(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, uint64(1), events[0].Seq)
		assert.Equal(t, uint64(2), events[1].Seq)
		assert.Equal(t, staged.ID, events[1].ID)

		tail, err := tx.Events(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, buck.TokenID(1), tail[0].NewBuck.ID)
		return nil
	}))
}

func hooksRunInOrder(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	var order []int
	require.NoError(t, store.Update(ctx, func(tx ledger.Tx) error {
		tx.AfterCommit(func() { order = append(order, 1) })
		tx.AfterCommit(func() { order = append(order, 2) })
		assert.Empty(t, order)
		return nil
	}))
	assert.Equal(t, []int{1, 2}, order)
}

func minterAndEngine(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	logger := zap.NewNop()
	clock := &fixedClock{t: time.Unix(1_700_000_000, 0)}
	styles := ruleset.DefaultStyles()
	bus := ledger.NewBus(logger)
	policy, err := ledger.NewAllowListPolicy([]string{string(admin)})
	require.NoError(t, err)
	minter := ledger.NewMinter(store, policy, styles, bus, clock, logger)
	resolver := combat.NewResolver(dice.NewLoggedRoller(dice.MustParse("1d20"), logger), styles, 1)
	engine := combat.NewEngine(store, resolver, 24*time.Hour, clock, dice.NewSeed, bus, logger)
	reader := ledger.NewReader(store, "https://token-cdn-domain/{id}.json")

	atk, err := minter.CreateBuck(ctx, admin, ledger.MintRequest{Owner: user1, Points: 14, FightingStyle: 1, Does: 69})
	require.NoError(t, err)
	def, err := minter.CreateBuck(ctx, admin, ledger.MintRequest{Owner: user2, Points: 14, FightingStyle: 1, Does: 69})
	require.NoError(t, err)
	assert.Equal(t, buck.TokenID(1), def)

	_, err = minter.CreateBuck(ctx, user1, ledger.MintRequest{Owner: user1, Points: 1, Does: 1})
	assert.ErrorIs(t, err, buck.ErrUnauthorized)
	_, err = engine.Fight(ctx, user2, atk, def)
	assert.ErrorIs(t, err, buck.ErrUnauthorized)

	res, err := engine.Fight(ctx, user1, atk, def)
	require.NoError(t, err)

	a, err := reader.GetBuck(ctx, atk)
	require.NoError(t, err)
	d, err := reader.GetBuck(ctx, def)
	require.NoError(t, err)
	switch res.Outcome {
	case buck.Draw:
		assert.Equal(t, buck.DrawSentinel, res.DoesMoved)
		assert.Zero(t, a.ReadyTime)
	case buck.Win:
		assert.Equal(t, uint64(69), res.DoesMoved)
		assert.Equal(t, uint64(138), a.Does)
		assert.Zero(t, d.Does)
		assert.Equal(t, clock.Now().Add(24*time.Hour).Unix(), a.ReadyTime)
	case buck.Lose:
		assert.Zero(t, res.DoesMoved)
		assert.Equal(t, uint64(69), a.Does)
		assert.Equal(t, clock.Now().Add(24*time.Hour).Unix(), a.ReadyTime)
	}
	assert.Zero(t, d.ReadyTime)
	assert.Equal(t, uint64(138), a.Does+d.Does)

	supply, err := reader.TotalDoes(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(138), supply)

	events, err := reader.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, ledger.EventFight, events[2].Kind)
	assert.Equal(t, res.DoesMoved, events[2].Fight.DoesMoved)
	assert.Equal(t, res.Seed[:], events[2].Fight.Seed)

	replayed := resolver.Replay(res.Seed,
		buck.Buck{Points: 14, FightingStyle: 1, Does: 69},
		buck.Buck{Points: 14, FightingStyle: 1, Does: 69})
	assert.Equal(t, res.Outcome, replayed.Outcome)
}
