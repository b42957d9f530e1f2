package ledger

import (
	"context"
	"strings"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
)

// Reader serves the read-only accessors of the ledger.
type Reader struct {
	store       Store
	uriTemplate string
}

// NewReader creates a Reader. uriTemplate is the collection metadata URI,
// typically containing the literal "{id}".
func NewReader(store Store, uriTemplate string) *Reader {
	return &Reader{store: store, uriTemplate: uriTemplate}
}

// GetBuck returns the attributes of id or buck.ErrNotFound.
func (r *Reader) GetBuck(ctx context.Context, id buck.TokenID) (buck.Buck, error) {
	var b buck.Buck
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		b, err = tx.GetBuck(ctx, id)
		return err
	})
	return b, err
}

// OwnerOf returns the owner of id or buck.ErrNotFound.
func (r *Reader) OwnerOf(ctx context.Context, id buck.TokenID) (buck.AccountID, error) {
	var owner buck.AccountID
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		owner, err = tx.OwnerOf(ctx, id)
		return err
	})
	return owner, err
}

// BalanceOf returns 1 if account owns id, otherwise 0.
func (r *Reader) BalanceOf(ctx context.Context, account buck.AccountID, id buck.TokenID) (uint64, error) {
	var bal uint64
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		bal, err = tx.BalanceOf(ctx, account, id)
		return err
	})
	return bal, err
}

// TotalDoes returns the does supply.
func (r *Reader) TotalDoes(ctx context.Context) (uint64, error) {
	var total uint64
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		total, err = tx.TotalDoes(ctx)
		return err
	})
	return total, err
}

// Events returns up to limit logged events with Seq > after.
func (r *Reader) Events(ctx context.Context, after uint64, limit int) ([]Event, error) {
	var events []Event
	err := r.store.View(ctx, func(tx Tx) error {
		var err error
		events, err = tx.Events(ctx, after, limit)
		return err
	})
	return events, err
}

// MetadataURI returns the collection URI template. The same template serves
// every id; clients substitute the id themselves.
func (r *Reader) MetadataURI(buck.TokenID) string {
	return r.uriTemplate
}

// ExpandURI substitutes id, as 64 lowercase hex digits, for "{id}" in the
// template.
func (r *Reader) ExpandURI(id buck.TokenID) string {
	return strings.ReplaceAll(r.uriTemplate, "{id}", id.Hex())
}
