package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/game/ruleset"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

const (
	deployer = buck.AccountID("0xdeployer")
	user1    = buck.AccountID("0xuser1")
	user2    = buck.AccountID("0xuser2")
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type denyPolicy struct{ err error }

func (p denyPolicy) Allow(context.Context, buck.AccountID, ledger.MintRequest) (bool, error) {
	return false, p.err
}

type fixture struct {
	store  *ledger.MemoryStore
	minter *ledger.Minter
	reader *ledger.Reader
	bus    *ledger.Bus
}

func newFixture(t *testing.T, policy ledger.MintPolicy) *fixture {
	t.Helper()
	if policy == nil {
		p, err := ledger.NewAllowListPolicy([]string{string(deployer)})
		require.NoError(t, err)
		policy = p
	}
	store := ledger.NewMemoryStore()
	bus := ledger.NewBus(zap.NewNop())
	clock := fixedClock{t: time.Unix(1_700_000_000, 0)}
	return &fixture{
		store:  store,
		minter: ledger.NewMinter(store, policy, ruleset.DefaultStyles(), bus, clock, zap.NewNop()),
		reader: ledger.NewReader(store, "https://token-cdn-domain/{id}.json"),
		bus:    bus,
	}
}

func TestCreateBuck_MintCorrectness(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sub := f.bus.Subscribe(4)
	defer sub.Close()

	id, err := f.minter.CreateBuck(ctx, deployer, ledger.MintRequest{Owner: user1, Points: 14, FightingStyle: 1, Does: 69})
	require.NoError(t, err)
	assert.Equal(t, buck.TokenID(0), id)

	owner, err := f.reader.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, user1, owner)

	bal, err := f.reader.BalanceOf(ctx, user1, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bal)
	bal, _ = f.reader.BalanceOf(ctx, user2, id)
	assert.Zero(t, bal)

	b, err := f.reader.GetBuck(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, buck.Buck{Points: 14, FightingStyle: 1, Does: 69, ReadyTime: 0}, b)

	events, err := f.reader.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.EventNewBuck, events[0].Kind)
	assert.Equal(t, ledger.NewBuckEvent{ID: 0, To: user1, Points: 14, Does: 69}, *events[0].NewBuck)

	select {
	case ev := <-sub.C:
		assert.Equal(t, events[0].ID, ev.ID)
		assert.Equal(t, uint64(1), ev.Seq)
	default:
		t.Fatal("NewBuck event was not published")
	}
}

func TestCreateBuck_SequentialIDs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for want := buck.TokenID(0); want < 5; want++ {
		id, err := f.minter.CreateBuck(ctx, deployer, ledger.MintRequest{Owner: user2, Points: 2, FightingStyle: 3, Does: 1})
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestCreateBuck_Unauthorized(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.minter.CreateBuck(ctx, user1, ledger.MintRequest{Owner: user1, Points: 1, Does: 1})
	assert.ErrorIs(t, err, buck.ErrUnauthorized)

	_, err = f.reader.OwnerOf(ctx, 0)
	assert.ErrorIs(t, err, buck.ErrNotFound)

	// The rejected call consumed no id.
	id, err := f.minter.CreateBuck(ctx, deployer, ledger.MintRequest{Owner: user1, Points: 1, Does: 1})
	require.NoError(t, err)
	assert.Equal(t, buck.TokenID(0), id)
}

func TestCreateBuck_UnauthorizedBeforeValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.minter.CreateBuck(ctx, user1, ledger.MintRequest{Owner: user1, Points: 1, FightingStyle: 9, Does: 1})
	assert.ErrorIs(t, err, buck.ErrUnauthorized)
	assert.NotErrorIs(t, err, buck.ErrInvalidAttributes)

	_, err = f.minter.CreateBuck(ctx, user1, ledger.MintRequest{Owner: "", Points: 1, Does: 1})
	assert.ErrorIs(t, err, buck.ErrUnauthorized)
	assert.NotErrorIs(t, err, buck.ErrInvalidAttributes)

	supply, err := f.reader.TotalDoes(ctx)
	require.NoError(t, err)
	assert.Zero(t, supply)
}

func TestCreateBuck_PolicyErrorDenies(t *testing.T) {
	f := newFixture(t, denyPolicy{err: errors.New("script crashed")})
	_, err := f.minter.CreateBuck(context.Background(), deployer, ledger.MintRequest{Owner: user1, Does: 1})
	assert.ErrorIs(t, err, buck.ErrUnauthorized)
}

func TestCreateBuck_InvalidAttributes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.minter.CreateBuck(ctx, deployer, ledger.MintRequest{Owner: "", Does: 1})
	assert.ErrorIs(t, err, buck.ErrInvalidAttributes)
	_, err = f.minter.CreateBuck(ctx, deployer, ledger.MintRequest{Owner: user1, FightingStyle: 42})
	assert.ErrorIs(t, err, buck.ErrInvalidAttributes)
}

func TestCreateBuck_SupplyCap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.minter.CreateBuck(ctx, deployer, ledger.MintRequest{Owner: user1, Does: buck.DrawSentinel})
	assert.ErrorIs(t, err, buck.ErrSupplyExceeded)

	_, err = f.minter.CreateBuck(ctx, deployer, ledger.MintRequest{Owner: user1, Does: buck.DrawSentinel - 1})
	require.NoError(t, err)
	_, err = f.minter.CreateBuck(ctx, deployer, ledger.MintRequest{Owner: user1, Does: 1})
	assert.ErrorIs(t, err, buck.ErrSupplyExceeded)

	total, err := f.reader.TotalDoes(ctx)
	require.NoError(t, err)
	assert.Equal(t, buck.DrawSentinel-1, total)
}

func TestCreateBuck_OpenPolicy(t *testing.T) {
	f := newFixture(t, ledger.OpenPolicy{})
	_, err := f.minter.CreateBuck(context.Background(), user1, ledger.MintRequest{Owner: user1, Does: 1})
	assert.NoError(t, err)
	_, err = f.minter.CreateBuck(context.Background(), "", ledger.MintRequest{Owner: user1, Does: 1})
	assert.ErrorIs(t, err, buck.ErrUnauthorized)
}

func TestNewAllowListPolicy_Invalid(t *testing.T) {
	_, err := ledger.NewAllowListPolicy(nil)
	assert.Error(t, err)
	_, err = ledger.NewAllowListPolicy([]string{" "})
	assert.Error(t, err)
}

func TestReader_MetadataURI(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, "https://token-cdn-domain/{id}.json", f.reader.MetadataURI(1))
	assert.Equal(t,
		"https://token-cdn-domain/0000000000000000000000000000000000000000000000000000000000000001.json",
		f.reader.ExpandURI(1))
}

func TestCreateBuck_ConcurrentMintsUnique(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	const n = 50
	ids := make(chan buck.TokenID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.minter.CreateBuck(ctx, deployer, ledger.MintRequest{Owner: user1, Does: 1})
			if err == nil {
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[buck.TokenID]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	for id := buck.TokenID(0); id < n; id++ {
		assert.True(t, seen[id], "missing id %d", id)
	}
}

// Property: successful mints return 0,1,2,... with no gaps, regardless of
// interleaved rejected mints.
func TestPropertyMonotonicIDs(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t, nil)
		ctx := context.Background()
		next := buck.TokenID(0)
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			caller := deployer
			if rapid.Bool().Draw(rt, "reject") {
				caller = user1
			}
			id, err := f.minter.CreateBuck(ctx, caller, ledger.MintRequest{
				Owner:         user2,
				Points:        rapid.Uint32().Draw(rt, "points"),
				FightingStyle: buck.FightingStyle(rapid.IntRange(0, 3).Draw(rt, "style")),
				Does:          rapid.Uint64Range(0, 1000).Draw(rt, "does"),
			})
			if caller != deployer {
				if !errors.Is(err, buck.ErrUnauthorized) {
					rt.Fatalf("expected unauthorized, got %v", err)
				}
				continue
			}
			if err != nil {
				rt.Fatalf("mint: %v", err)
			}
			if id != next {
				rt.Fatalf("id = %d, want %d", id, next)
			}
			next++
		}
	})
}
