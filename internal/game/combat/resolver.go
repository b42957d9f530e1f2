// Package combat resolves fights between bucks and applies their outcome to
// the ledger.
package combat

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/game/dice"
)

// StyleTable yields the matchup modifier for a style facing another.
type StyleTable interface {
	Bonus(self, other buck.FightingStyle) int
}

// Resolution is the scored outcome of one fight.
type Resolution struct {
	Outcome       buck.Outcome
	AttackerRoll  dice.RollResult
	DefenderRoll  dice.RollResult
	AttackerScore int
	DefenderScore int
}

// Resolver scores both sides as points + roll + style bonus.
// A score gap within DrawMargin is a draw.
type Resolver struct {
	roller     *dice.Roller
	styles     StyleTable
	drawMargin int
}

// NewResolver creates a Resolver.
//
// Precondition: roller and styles are non-nil; drawMargin >= 0.
func NewResolver(roller *dice.Roller, styles StyleTable, drawMargin int) *Resolver {
	return &Resolver{roller: roller, styles: styles, drawMargin: drawMargin}
}

// Resolve scores attacker against defender drawing every roll from src.
// The attacker rolls first.
//
// Postcondition: Outcome is Draw iff |AttackerScore-DefenderScore| <= drawMargin.
func (r *Resolver) Resolve(src dice.Source, attacker, defender buck.Buck) Resolution {
	atkRoll := r.roller.Roll(src, zap.String("side", "attacker"))
	defRoll := r.roller.Roll(src, zap.String("side", "defender"))

	res := Resolution{
		AttackerRoll:  atkRoll,
		DefenderRoll:  defRoll,
		AttackerScore: int(attacker.Points) + atkRoll.Total() + r.styles.Bonus(attacker.FightingStyle, defender.FightingStyle),
		DefenderScore: int(defender.Points) + defRoll.Total() + r.styles.Bonus(defender.FightingStyle, attacker.FightingStyle),
	}

	gap := res.AttackerScore - res.DefenderScore
	switch {
	case gap <= r.drawMargin && gap >= -r.drawMargin:
		res.Outcome = buck.Draw
	case gap > 0:
		res.Outcome = buck.Win
	default:
		res.Outcome = buck.Lose
	}
	return res
}

// Replay recomputes a fight from its recorded seed and the pre-fight
// attributes of both bucks.
func (r *Resolver) Replay(seed dice.Seed, attacker, defender buck.Buck) Resolution {
	return r.Resolve(dice.NewStreamSource(seed), attacker, defender)
}
