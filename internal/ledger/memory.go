package ledger

import (
	"context"
	"sync"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
)

// MemoryStore is an in-process Store. Updates hold an exclusive lock and
// stage every write until fn succeeds; Views share a read lock.
type MemoryStore struct {
	mu     sync.RWMutex
	attrs  *AttributeStore
	owners *OwnershipLedger
	nextID buck.TokenID
	supply uint64
	events []Event
}

// NewMemoryStore returns an empty store whose first minted id is 0.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attrs:  NewAttributeStore(),
		owners: NewOwnershipLedger(),
	}
}

// View implements Store.
func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.newTx(true))
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.newTx(false)
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	for _, hook := range tx.hooks {
		hook()
	}
	return nil
}

func (s *MemoryStore) newTx(readOnly bool) *memTx {
	return &memTx{
		store:    s,
		readOnly: readOnly,
		bucks:    make(map[buck.TokenID]buck.Buck),
		owners:   make(map[buck.TokenID]buck.AccountID),
		nextID:   s.nextID,
		supply:   s.supply,
	}
}

// commit merges staged writes. Mints are applied before attribute updates so
// Set never sees an unknown id.
func (s *MemoryStore) commit(tx *memTx) {
	for id, owner := range tx.owners {
		_ = s.owners.MintTo(owner, id)
		s.attrs.insert(id, tx.bucks[id])
	}
	for id, b := range tx.bucks {
		_ = s.attrs.Set(id, b)
	}
	s.nextID = tx.nextID
	s.supply = tx.supply
	s.events = append(s.events, tx.events...)
}

type memTx struct {
	store    *MemoryStore
	readOnly bool
	bucks    map[buck.TokenID]buck.Buck
	owners   map[buck.TokenID]buck.AccountID
	nextID   buck.TokenID
	supply   uint64
	events   []Event
	hooks    []func()
}

func (tx *memTx) GetBuck(_ context.Context, id buck.TokenID) (buck.Buck, error) {
	if b, ok := tx.bucks[id]; ok {
		return b, nil
	}
	return tx.store.attrs.Get(id)
}

func (tx *memTx) PutBuck(ctx context.Context, id buck.TokenID, b buck.Buck) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	if _, err := tx.GetBuck(ctx, id); err != nil {
		return err
	}
	tx.bucks[id] = b
	return nil
}

func (tx *memTx) OwnerOf(_ context.Context, id buck.TokenID) (buck.AccountID, error) {
	if owner, ok := tx.owners[id]; ok {
		return owner, nil
	}
	return tx.store.owners.OwnerOf(id)
}

func (tx *memTx) BalanceOf(ctx context.Context, account buck.AccountID, id buck.TokenID) (uint64, error) {
	if owner, ok := tx.owners[id]; ok {
		if owner == account {
			return 1, nil
		}
		return 0, nil
	}
	return tx.store.owners.BalanceOf(account, id), nil
}

func (tx *memTx) MintTo(ctx context.Context, account buck.AccountID, id buck.TokenID, b buck.Buck) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	if _, err := tx.OwnerOf(ctx, id); err == nil {
		return buck.ErrAlreadyMinted
	}
	tx.owners[id] = account
	tx.bucks[id] = b
	tx.supply += b.Does
	return nil
}

func (tx *memTx) NextID(context.Context) (buck.TokenID, error) {
	if tx.readOnly {
		return 0, ErrReadOnly
	}
	id := tx.nextID
	tx.nextID++
	return id, nil
}

func (tx *memTx) TotalDoes(context.Context) (uint64, error) {
	return tx.supply, nil
}

func (tx *memTx) AppendEvent(_ context.Context, e *Event) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	e.Seq = uint64(len(tx.store.events)+len(tx.events)) + 1
	tx.events = append(tx.events, *e)
	return nil
}

func (tx *memTx) Events(_ context.Context, after uint64, limit int) ([]Event, error) {
	limit = ClampLimit(limit)
	// Committed and staged events form one contiguous run starting at seq 1.
	all := tx.store.events
	if len(tx.events) > 0 {
		all = append(all[:len(all):len(all)], tx.events...)
	}
	if after >= uint64(len(all)) {
		return []Event{}, nil
	}
	page := all[after:]
	if len(page) > limit {
		page = page[:limit]
	}
	out := make([]Event, len(page))
	copy(out, page)
	return out, nil
}

func (tx *memTx) AfterCommit(fn func()) {
	tx.hooks = append(tx.hooks, fn)
}
