package ledger

import "github.com/cory-johannsen/crypdoebucks/internal/game/buck"

// OwnershipLedger maps token ids to their single owning account. Every id has
// a supply of exactly one unit.
//
// OwnershipLedger is not safe for concurrent use; MemoryStore guards it.
type OwnershipLedger struct {
	owners map[buck.TokenID]buck.AccountID
}

// NewOwnershipLedger returns an empty ledger.
func NewOwnershipLedger() *OwnershipLedger {
	return &OwnershipLedger{owners: make(map[buck.TokenID]buck.AccountID)}
}

// OwnerOf returns the owner of id or buck.ErrNotFound.
func (l *OwnershipLedger) OwnerOf(id buck.TokenID) (buck.AccountID, error) {
	owner, ok := l.owners[id]
	if !ok {
		return "", buck.ErrNotFound
	}
	return owner, nil
}

// BalanceOf returns 1 if account owns id and 0 otherwise, including for
// unminted ids.
func (l *OwnershipLedger) BalanceOf(account buck.AccountID, id buck.TokenID) uint64 {
	if owner, ok := l.owners[id]; ok && owner == account {
		return 1
	}
	return 0
}

// MintTo records account as the sole owner of id.
//
// Postcondition: Returns buck.ErrAlreadyMinted if id already has an owner.
func (l *OwnershipLedger) MintTo(account buck.AccountID, id buck.TokenID) error {
	if _, ok := l.owners[id]; ok {
		return buck.ErrAlreadyMinted
	}
	l.owners[id] = account
	return nil
}
