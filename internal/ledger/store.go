// Package ledger holds the ownership ledger and per-token attribute state,
// the token minter and the event log shared with the combat engine.
package ledger

import (
	"context"
	"errors"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
)

// ErrReadOnly is returned when a write is attempted inside View.
var ErrReadOnly = errors.New("ledger: write in read-only transaction")

// Tx is the view of ledger state available inside a transaction. It combines
// the attribute store, the ownership ledger, the id counter and the event log.
//
// A Tx must not be retained after the function it was passed to returns.
type Tx interface {
	// GetBuck returns the attributes of id or buck.ErrNotFound.
	GetBuck(ctx context.Context, id buck.TokenID) (buck.Buck, error)
	// PutBuck overwrites the attributes of an existing id; buck.ErrNotFound otherwise.
	PutBuck(ctx context.Context, id buck.TokenID, b buck.Buck) error
	// OwnerOf returns the owner of id or buck.ErrNotFound.
	OwnerOf(ctx context.Context, id buck.TokenID) (buck.AccountID, error)
	// BalanceOf returns 1 if account owns id, otherwise 0.
	BalanceOf(ctx context.Context, account buck.AccountID, id buck.TokenID) (uint64, error)
	// MintTo records account as sole owner of id with attributes b and adds
	// b.Does to total supply; buck.ErrAlreadyMinted if id exists.
	MintTo(ctx context.Context, account buck.AccountID, id buck.TokenID, b buck.Buck) error
	// NextID reserves and returns the next sequential token id.
	NextID(ctx context.Context) (buck.TokenID, error)
	// TotalDoes returns the sum of does across all bucks.
	TotalDoes(ctx context.Context) (uint64, error)
	// AppendEvent assigns e.Seq and appends e to the event log.
	AppendEvent(ctx context.Context, e *Event) error
	// Events returns up to limit events with Seq > after in ascending order,
	// including events appended earlier in the same transaction.
	Events(ctx context.Context, after uint64, limit int) ([]Event, error)
	// AfterCommit registers fn to run once the transaction has committed.
	// Hooks of one Update run in registration order before the next
	// Update begins and must not call back into the Store.
	AfterCommit(fn func())
}

// Store provides serialized, all-or-nothing access to ledger state.
type Store interface {
	// View runs fn with a read-only Tx. Views may run concurrently.
	View(ctx context.Context, fn func(Tx) error) error
	// Update runs fn with a read-write Tx. Updates are serialized; if fn
	// returns an error, no write made through the Tx is kept.
	Update(ctx context.Context, fn func(Tx) error) error
}

// MaxEventPage bounds the number of events returned by a single query.
const MaxEventPage = 1000

// ClampLimit maps limit into [1, MaxEventPage]; non-positive means the maximum.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxEventPage {
		return MaxEventPage
	}
	return limit
}
