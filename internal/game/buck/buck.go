// Package buck defines the token record carried by every minted buck and the
// error kinds shared by the ledger and the combat engine.
package buck

import (
	"fmt"
	"strings"
	"time"
)

// DrawSentinel is the DoesMoved value reported for a drawn fight. It is not a
// real quantity of does; total supply is kept strictly below it.
const DrawSentinel uint64 = 4200000000

// TokenID identifies a buck. Ids are assigned sequentially from 0.
type TokenID uint64

// String returns the decimal form of the id.
func (id TokenID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// Hex returns the id as 64 lowercase hex digits, the form substituted into
// {id} metadata URI templates.
func (id TokenID) Hex() string {
	return fmt.Sprintf("%064x", uint64(id))
}

// AccountID is an opaque account identifier. Accounts are compared byte-wise.
type AccountID string

// Valid reports whether the account id is usable as an owner or caller.
func (a AccountID) Valid() bool {
	return strings.TrimSpace(string(a)) != ""
}

// FightingStyle is a matchup category. Known styles come from the ruleset.
type FightingStyle uint8

// Buck is the per-token combat record.
type Buck struct {
	// Points is the combat strength rating. Fixed at mint.
	Points uint32
	// FightingStyle is the matchup category.
	FightingStyle FightingStyle
	// Does is the transferable resource held by the buck.
	Does uint64
	// ReadyTime is the unix time (seconds) before which the buck may not attack.
	ReadyTime int64
}

// Ready reports whether the buck may initiate a fight at now.
//
// Postcondition: Returns true iff now.Unix() >= b.ReadyTime.
func (b Buck) Ready(now time.Time) bool {
	return now.Unix() >= b.ReadyTime
}

// CooldownRemaining returns how long until the buck is ready, or zero.
func (b Buck) CooldownRemaining(now time.Time) time.Duration {
	if b.Ready(now) {
		return 0
	}
	return time.Unix(b.ReadyTime, 0).Sub(now)
}
