package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

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

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// testGRPCServer starts an in-process ledger service and returns its address.
func testGRPCServer(t *testing.T) string {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := ledger.NewMemoryStore()
	bus := ledger.NewBus(logger)
	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	styles := ruleset.DefaultStyles()
	policy, err := ledger.NewAllowListPolicy([]string{string(admin)})
	require.NoError(t, err)

	minter := ledger.NewMinter(store, policy, styles, bus, clock, logger)
	resolver := combat.NewResolver(dice.NewLoggedRoller(dice.MustParse("1d20"), logger), styles, 1)
	engine := combat.NewEngine(store, resolver, 24*time.Hour, clock, dice.NewSeed, bus, logger)
	reader := ledger.NewReader(store, "https://token-cdn-domain/{id}.json")

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := NewGRPCServer(NewServer(minter, engine, reader, bus, logger), logger)
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(func() {
		grpcServer.Stop()
		bus.Close()
	})
	return lis.Addr().String()
}

func dialAs(t *testing.T, addr string, account buck.AccountID) *Client {
	t.Helper()
	c, err := Dial(addr, account)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestService_MintAndQuery(t *testing.T) {
	addr := testGRPCServer(t)
	ctx := context.Background()
	c := dialAs(t, addr, admin)

	id, err := c.CreateBuck(ctx, ledger.MintRequest{Owner: user1, Points: 14, FightingStyle: 1, Does: 69})
	require.NoError(t, err)
	assert.Equal(t, buck.TokenID(0), id)

	owner, err := c.OwnerOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, user1, owner)

	bal, err := c.BalanceOf(ctx, user1, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bal)
	bal, err = c.BalanceOf(ctx, user2, id)
	require.NoError(t, err)
	assert.Zero(t, bal)

	b, err := c.GetBuck(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, buck.Buck{Points: 14, FightingStyle: 1, Does: 69}, b)

	tmpl, expanded, err := c.MetadataURI(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://token-cdn-domain/{id}.json", tmpl)
	assert.Equal(t, "https://token-cdn-domain/"+id.Hex()+".json", expanded)
}

func TestService_ErrorsCarrySentinels(t *testing.T) {
	addr := testGRPCServer(t)
	ctx := context.Background()
	adminClient := dialAs(t, addr, admin)
	userClient := dialAs(t, addr, user1)

	_, err := userClient.CreateBuck(ctx, ledger.MintRequest{Owner: user1, Points: 1, Does: 1})
	assert.ErrorIs(t, err, buck.ErrUnauthorized)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = adminClient.GetBuck(ctx, 99)
	assert.ErrorIs(t, err, buck.ErrNotFound)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = adminClient.CreateBuck(ctx, ledger.MintRequest{Owner: user1, Points: 1, FightingStyle: 200, Does: 1})
	assert.ErrorIs(t, err, buck.ErrInvalidAttributes)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = userClient.CreateBuck(ctx, ledger.MintRequest{Owner: user1, Points: 1, FightingStyle: 200, Does: 1})
	assert.ErrorIs(t, err, buck.ErrUnauthorized)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	id, err := adminClient.CreateBuck(ctx, ledger.MintRequest{Owner: user1, Points: 1, Does: 1})
	require.NoError(t, err)
	_, err = userClient.Fight(ctx, id, id)
	assert.ErrorIs(t, err, buck.ErrInvalidTarget)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	anon := dialAs(t, addr, "")
	_, err = anon.CreateBuck(ctx, ledger.MintRequest{Owner: user1, Points: 1, Does: 1})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestService_FightConservesDoes(t *testing.T) {
	addr := testGRPCServer(t)
	ctx := context.Background()
	adminClient := dialAs(t, addr, admin)
	attackerClient := dialAs(t, addr, user1)

	atk, err := adminClient.CreateBuck(ctx, ledger.MintRequest{Owner: user1, Points: 14, FightingStyle: 1, Does: 69})
	require.NoError(t, err)
	def, err := adminClient.CreateBuck(ctx, ledger.MintRequest{Owner: user2, Points: 14, FightingStyle: 1, Does: 69})
	require.NoError(t, err)

	_, err = dialAs(t, addr, user2).Fight(ctx, atk, def)
	assert.ErrorIs(t, err, buck.ErrUnauthorized)

	res, err := attackerClient.Fight(ctx, atk, def)
	require.NoError(t, err)
	assert.Equal(t, atk, res.AttackerID)
	assert.Equal(t, def, res.DefenderID)

	a, err := attackerClient.GetBuck(ctx, atk)
	require.NoError(t, err)
	d, err := attackerClient.GetBuck(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, uint64(138), a.Does+d.Does)

	switch res.Outcome {
	case buck.Draw:
		assert.Equal(t, buck.DrawSentinel, res.DoesMoved)
	case buck.Win:
		assert.Equal(t, uint64(69), res.DoesMoved)
		_, err = attackerClient.Fight(ctx, atk, def)
		assert.ErrorIs(t, err, buck.ErrNotReady)
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	case buck.Lose:
		assert.Zero(t, res.DoesMoved)
	}

	events, err := attackerClient.ListEvents(ctx, 0, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(events), 3)
	fight := events[2]
	require.Equal(t, ledger.EventFight, fight.Kind)
	assert.Equal(t, res.DoesMoved, fight.Fight.DoesMoved)
	assert.Equal(t, res.Seed[:], fight.Fight.Seed)
}

func TestService_WatchEventsCatchesUpThenFollows(t *testing.T) {
	addr := testGRPCServer(t)
	c := dialAs(t, addr, admin)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.CreateBuck(ctx, ledger.MintRequest{Owner: user1, Points: 1, Does: 10})
	require.NoError(t, err)

	got := make(chan ledger.Event, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.WatchEvents(ctx, 0, func(e ledger.Event) error {
			got <- e
			return nil
		})
	}()

	first := <-got
	assert.Equal(t, uint64(1), first.Seq)
	require.NotNil(t, first.NewBuck)
	assert.Equal(t, uint64(10), first.NewBuck.Does)

	_, err = c.CreateBuck(ctx, ledger.MintRequest{Owner: user2, Points: 2, Does: 20})
	require.NoError(t, err)

	select {
	case second := <-got:
		assert.Equal(t, uint64(2), second.Seq)
		assert.Equal(t, user2, second.NewBuck.To)
	case <-ctx.Done():
		t.Fatal("no live event received")
	}

	cancel()
	err = <-done
	assert.Equal(t, codes.Canceled, status.Code(err))
}

func TestToStatus_MapsEverySentinel(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{buck.ErrNotFound, codes.NotFound},
		{buck.ErrAlreadyMinted, codes.AlreadyExists},
		{buck.ErrUnauthorized, codes.PermissionDenied},
		{buck.ErrNotReady, codes.FailedPrecondition},
		{buck.ErrInvalidTarget, codes.InvalidArgument},
		{buck.ErrInvalidAttributes, codes.InvalidArgument},
		{buck.ErrSupplyExceeded, codes.ResourceExhausted},
	}
	for _, tc := range cases {
		err := toStatus(fmt.Errorf("fight 1 vs 2: %w", tc.err))
		assert.Equal(t, tc.code, status.Code(err), "mapping %v", tc.err)
		assert.ErrorIs(t, FromStatus(err), tc.err)
	}

	assert.Equal(t, codes.Internal, status.Code(toStatus(errors.New("disk on fire"))))
	assert.Equal(t, codes.DeadlineExceeded, status.Code(toStatus(context.DeadlineExceeded)))
	assert.NoError(t, toStatus(nil))
}

func TestUintField(t *testing.T) {
	s := newStruct(map[string]*structpb.Value{
		"small":    structpb.NewNumberValue(42),
		"big":      structpb.NewStringValue("18446744073709551615"),
		"negative": structpb.NewNumberValue(-1),
		"fraction": structpb.NewNumberValue(1.5),
		"text":     structpb.NewBoolValue(true),
	})

	n, err := uintField(s, "small", 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	n, err = uintField(s, "big", math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), n)

	for _, key := range []string{"negative", "fraction", "text", "missing"} {
		_, err := uintField(s, key, math.MaxUint64)
		assert.Error(t, err, key)
	}
	_, err = uintField(s, "small", 10)
	assert.Error(t, err)

	n, err = optionalUint(s, "missing", 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUintValue_LargeValuesSurvive(t *testing.T) {
	s := newStruct(map[string]*structpb.Value{"id": uintValue(math.MaxUint64)})
	n, err := uintField(s, "id", math.MaxUint64)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), n)
}
