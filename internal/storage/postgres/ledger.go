package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

// LedgerStore is a ledger.Store backed by PostgreSQL. Every Update locks the
// single ledger_state row, so writers serialize across processes as well as
// within one.
type LedgerStore struct {
	db *pgxpool.Pool
	mu sync.Mutex
}

// NewLedgerStore creates a LedgerStore backed by the given pool.
//
// Precondition: db must be a valid, open connection pool on a migrated schema.
func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: db}
}

type ledgerState struct {
	nextID  int64
	supply  int64
	lastSeq int64
}

// View implements ledger.Store with a read-only repeatable-read snapshot.
func (s *LedgerStore) View(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("beginning view: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	st, err := loadState(ctx, tx, false)
	if err != nil {
		return err
	}
	return fn(&pgTx{tx: tx, readOnly: true, state: st})
}

// Update implements ledger.Store.
//
// Postcondition: Either every write made through the Tx is committed and the
// AfterCommit hooks have run in order, or nothing is written.
func (s *LedgerStore) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	st, err := loadState(ctx, tx, true)
	if err != nil {
		return err
	}
	ptx := &pgTx{tx: tx, state: st}
	if err := fn(ptx); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE ledger_state SET next_token_id = $1, total_does = $2, last_event_seq = $3`,
		ptx.state.nextID, ptx.state.supply, ptx.state.lastSeq,
	); err != nil {
		return fmt.Errorf("saving ledger state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	for _, hook := range ptx.hooks {
		hook()
	}
	return nil
}

func loadState(ctx context.Context, tx pgx.Tx, forUpdate bool) (ledgerState, error) {
	q := `SELECT next_token_id, total_does, last_event_seq FROM ledger_state`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var st ledgerState
	if err := tx.QueryRow(ctx, q).Scan(&st.nextID, &st.supply, &st.lastSeq); err != nil {
		return ledgerState{}, fmt.Errorf("loading ledger state: %w", err)
	}
	return st, nil
}

type pgTx struct {
	tx       pgx.Tx
	readOnly bool
	state    ledgerState
	hooks    []func()
}

func (t *pgTx) GetBuck(ctx context.Context, id buck.TokenID) (buck.Buck, error) {
	q := `SELECT points, fighting_style, does, ready_time FROM bucks WHERE token_id = $1`
	if !t.readOnly {
		q += ` FOR UPDATE`
	}
	var points, does, ready int64
	var style int16
	err := t.tx.QueryRow(ctx, q, int64(id)).Scan(&points, &style, &does, &ready)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return buck.Buck{}, buck.ErrNotFound
		}
		return buck.Buck{}, fmt.Errorf("querying buck %d: %w", id, err)
	}
	return buck.Buck{
		Points:        uint32(points),
		FightingStyle: buck.FightingStyle(style),
		Does:          uint64(does),
		ReadyTime:     ready,
	}, nil
}

func (t *pgTx) PutBuck(ctx context.Context, id buck.TokenID, b buck.Buck) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE bucks SET points = $2, fighting_style = $3, does = $4, ready_time = $5
		 WHERE token_id = $1`,
		int64(id), int64(b.Points), int16(b.FightingStyle), int64(b.Does), b.ReadyTime,
	)
	if err != nil {
		return fmt.Errorf("updating buck %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return buck.ErrNotFound
	}
	return nil
}

func (t *pgTx) OwnerOf(ctx context.Context, id buck.TokenID) (buck.AccountID, error) {
	var owner string
	err := t.tx.QueryRow(ctx, `SELECT owner FROM bucks WHERE token_id = $1`, int64(id)).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", buck.ErrNotFound
		}
		return "", fmt.Errorf("querying owner of %d: %w", id, err)
	}
	return buck.AccountID(owner), nil
}

func (t *pgTx) BalanceOf(ctx context.Context, account buck.AccountID, id buck.TokenID) (uint64, error) {
	var n int64
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM bucks WHERE token_id = $1 AND owner = $2`,
		int64(id), string(account),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("querying balance of %d: %w", id, err)
	}
	return uint64(n), nil
}

func (t *pgTx) MintTo(ctx context.Context, account buck.AccountID, id buck.TokenID, b buck.Buck) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bucks (token_id, owner, points, fighting_style, does, ready_time)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(id), string(account), int64(b.Points), int16(b.FightingStyle), int64(b.Does), b.ReadyTime,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return buck.ErrAlreadyMinted
		}
		return fmt.Errorf("inserting buck %d: %w", id, err)
	}
	t.state.supply += int64(b.Does)
	return nil
}

func (t *pgTx) NextID(context.Context) (buck.TokenID, error) {
	if t.readOnly {
		return 0, ledger.ErrReadOnly
	}
	id := buck.TokenID(t.state.nextID)
	t.state.nextID++
	return id, nil
}

func (t *pgTx) TotalDoes(context.Context) (uint64, error) {
	return uint64(t.state.supply), nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *ledger.Event) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	seq := t.state.lastSeq + 1
	_, err := t.tx.Exec(ctx,
		`INSERT INTO events (seq, id, kind, occurred_at, new_buck, fight)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		seq, pgtype.UUID{Bytes: e.ID, Valid: true}, string(e.Kind), e.At, e.NewBuck, e.Fight,
	)
	if err != nil {
		return fmt.Errorf("appending %s event: %w", e.Kind, err)
	}
	t.state.lastSeq = seq
	e.Seq = uint64(seq)
	return nil
}

func (t *pgTx) Events(ctx context.Context, after uint64, limit int) ([]ledger.Event, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT seq, id, kind, occurred_at, new_buck, fight
		 FROM events WHERE seq > $1 ORDER BY seq LIMIT $2`,
		int64(after), ledger.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	out := []ledger.Event{}
	for rows.Next() {
		var (
			seq  int64
			id   pgtype.UUID
			kind string
			ev   ledger.Event
		)
		if err := rows.Scan(&seq, &id, &kind, &ev.At, &ev.NewBuck, &ev.Fight); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.ID = uuid.UUID(id.Bytes)
		ev.Kind = ledger.EventKind(kind)
		ev.At = ev.At.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return out, nil
}

func (t *pgTx) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
