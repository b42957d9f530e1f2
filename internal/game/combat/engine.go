package combat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/game/dice"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

// SeedFunc produces the entropy for one fight.
type SeedFunc func() (dice.Seed, error)

// Result is the committed outcome of a fight.
type Result struct {
	AttackerID    buck.TokenID
	DefenderID    buck.TokenID
	Outcome       buck.Outcome
	DoesMoved     uint64
	AttackerScore int
	DefenderScore int
	ReadyTime     int64
	Seed          dice.Seed
}

// Engine runs fights against the ledger. All state changes of a fight and its
// event commit in one Store update.
type Engine struct {
	store    ledger.Store
	resolver *Resolver
	cooldown time.Duration
	clock    ledger.Clock
	seeds    SeedFunc
	bus      *ledger.Bus
	logger   *zap.Logger
}

// NewEngine creates an Engine.
//
// Precondition: every argument is non-nil; cooldown > 0.
func NewEngine(store ledger.Store, resolver *Resolver, cooldown time.Duration, clock ledger.Clock, seeds SeedFunc, bus *ledger.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		resolver: resolver,
		cooldown: cooldown,
		clock:    clock,
		seeds:    seeds,
		bus:      bus,
		logger:   logger,
	}
}

// Fight pits attackerID against defenderID on behalf of caller.
//
// Precondition failures, each leaving state untouched:
//   - buck.ErrInvalidTarget if attackerID == defenderID or the defender does not exist;
//   - buck.ErrNotFound if the attacker does not exist;
//   - buck.ErrUnauthorized if caller does not own the attacker;
//   - buck.ErrNotReady if the attacker is cooling down.
//
// Postcondition: On Win all defender does move to the attacker; on Win or
// Lose the attacker's ReadyTime becomes now+cooldown; on Draw DoesMoved is
// buck.DrawSentinel and no attribute changes. The defender's ReadyTime is
// never changed. Exactly one Fight event is logged with the state change.
func (e *Engine) Fight(ctx context.Context, caller buck.AccountID, attackerID, defenderID buck.TokenID) (Result, error) {
	if attackerID == defenderID {
		return Result{}, fmt.Errorf("buck %s cannot fight itself: %w", attackerID, buck.ErrInvalidTarget)
	}

	var res Result
	err := e.store.Update(ctx, func(tx ledger.Tx) error {
		attacker, defender, err := e.load(ctx, tx, attackerID, defenderID)
		if err != nil {
			return err
		}

		owner, err := tx.OwnerOf(ctx, attackerID)
		if err != nil {
			return fmt.Errorf("owner of attacker %s: %w", attackerID, err)
		}
		if owner != caller {
			return fmt.Errorf("caller %q does not own buck %s: %w", caller, attackerID, buck.ErrUnauthorized)
		}

		now := e.clock.Now()
		if !attacker.Ready(now) {
			return fmt.Errorf("buck %s ready in %s: %w", attackerID, attacker.CooldownRemaining(now), buck.ErrNotReady)
		}

		seed, err := e.seeds()
		if err != nil {
			return fmt.Errorf("drawing fight seed: %w", err)
		}
		r := e.resolver.Replay(seed, attacker, defender)

		res = Result{
			AttackerID:    attackerID,
			DefenderID:    defenderID,
			Outcome:       r.Outcome,
			AttackerScore: r.AttackerScore,
			DefenderScore: r.DefenderScore,
			ReadyTime:     attacker.ReadyTime,
			Seed:          seed,
		}

		switch r.Outcome {
		case buck.Draw:
			res.DoesMoved = buck.DrawSentinel
		case buck.Win:
			res.DoesMoved = defender.Does
			attacker.Does += defender.Does
			defender.Does = 0
			attacker.ReadyTime = now.Add(e.cooldown).Unix()
		case buck.Lose:
			res.DoesMoved = 0
			attacker.ReadyTime = now.Add(e.cooldown).Unix()
		}
		res.ReadyTime = attacker.ReadyTime

		if r.Outcome != buck.Draw {
			if err := tx.PutBuck(ctx, attackerID, attacker); err != nil {
				return fmt.Errorf("writing attacker %s: %w", attackerID, err)
			}
			if err := tx.PutBuck(ctx, defenderID, defender); err != nil {
				return fmt.Errorf("writing defender %s: %w", defenderID, err)
			}
		}

		ev := ledger.FightResolved(now, ledger.FightEvent{
			AttackerID: attackerID,
			DefenderID: defenderID,
			DoesMoved:  res.DoesMoved,
			Outcome:    res.Outcome,
			Seed:       seed[:],
		})
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("logging fight event: %w", err)
		}
		tx.AfterCommit(func() { e.bus.Publish(*ev) })
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	e.logger.Info("fight resolved",
		zap.Stringer("attacker", attackerID),
		zap.Stringer("defender", defenderID),
		zap.String("caller", string(caller)),
		zap.Stringer("outcome", res.Outcome),
		zap.Uint64("does_moved", res.DoesMoved),
		zap.Int("attacker_score", res.AttackerScore),
		zap.Int("defender_score", res.DefenderScore),
	)
	return res, nil
}

// load reads both bucks in ascending id order so concurrent fights over the
// same pair lock rows consistently. A missing attacker is reported before a
// missing defender.
func (e *Engine) load(ctx context.Context, tx ledger.Tx, attackerID, defenderID buck.TokenID) (buck.Buck, buck.Buck, error) {
	ids := [2]buck.TokenID{attackerID, defenderID}
	if defenderID < attackerID {
		ids = [2]buck.TokenID{defenderID, attackerID}
	}
	got := make(map[buck.TokenID]buck.Buck, 2)
	errs := make(map[buck.TokenID]error, 2)
	for _, id := range ids {
		b, err := tx.GetBuck(ctx, id)
		if err != nil {
			errs[id] = err
			continue
		}
		got[id] = b
	}

	if err := errs[attackerID]; err != nil {
		return buck.Buck{}, buck.Buck{}, fmt.Errorf("attacker %s: %w", attackerID, err)
	}
	if err := errs[defenderID]; err != nil {
		if errors.Is(err, buck.ErrNotFound) {
			return buck.Buck{}, buck.Buck{}, fmt.Errorf("defender %s does not exist: %w", defenderID, buck.ErrInvalidTarget)
		}
		return buck.Buck{}, buck.Buck{}, fmt.Errorf("defender %s: %w", defenderID, err)
	}
	return got[attackerID], got[defenderID], nil
}
