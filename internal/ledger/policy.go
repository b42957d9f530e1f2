package ledger

import (
	"context"
	"fmt"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
)

// Policy names accepted by config.
const (
	PolicyAllowList = "allowlist"
	PolicyOpen      = "open"
	PolicyScript    = "script"
)

// MintPolicy decides whether caller may mint req.
type MintPolicy interface {
	// Allow returns true to permit the mint. A non-nil error denies it.
	Allow(ctx context.Context, caller buck.AccountID, req MintRequest) (bool, error)
}

// AllowListPolicy permits only the listed administrator accounts.
type AllowListPolicy struct {
	admins map[buck.AccountID]struct{}
}

// NewAllowListPolicy builds a policy from admin account ids.
//
// Postcondition: Returns an error if admins is empty or contains a blank id.
func NewAllowListPolicy(admins []string) (*AllowListPolicy, error) {
	if len(admins) == 0 {
		return nil, fmt.Errorf("allowlist mint policy requires at least one admin")
	}
	p := &AllowListPolicy{admins: make(map[buck.AccountID]struct{}, len(admins))}
	for _, a := range admins {
		id := buck.AccountID(a)
		if !id.Valid() {
			return nil, fmt.Errorf("allowlist mint policy: blank admin id")
		}
		p.admins[id] = struct{}{}
	}
	return p, nil
}

// Allow implements MintPolicy.
func (p *AllowListPolicy) Allow(_ context.Context, caller buck.AccountID, _ MintRequest) (bool, error) {
	_, ok := p.admins[caller]
	return ok, nil
}

// OpenPolicy lets any identified caller mint.
type OpenPolicy struct{}

// Allow implements MintPolicy.
func (OpenPolicy) Allow(_ context.Context, caller buck.AccountID, _ MintRequest) (bool, error) {
	return caller.Valid(), nil
}
