package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

// LedgerStore is a ledger.Store backed by a SQLite file. Counters live in the
// single ledger_state row and are written back when an Update commits.
type LedgerStore struct {
	db *sql.DB
	mu sync.Mutex
}

type ledgerState struct {
	nextID  int64
	supply  int64
	lastSeq int64
}

// View implements ledger.Store.
func (s *LedgerStore) View(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning view: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	st, err := loadState(ctx, tx)
	if err != nil {
		return err
	}
	return fn(&sqlTx{tx: tx, readOnly: true, state: st})
}

// Update implements ledger.Store.
//
// Postcondition: Either every write made through the Tx is committed and the
// AfterCommit hooks have run in order, or nothing is written.
func (s *LedgerStore) Update(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	st, err := loadState(ctx, tx)
	if err != nil {
		return err
	}
	stx := &sqlTx{tx: tx, state: st}
	if err := fn(stx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_state SET next_token_id = ?, total_does = ?, last_event_seq = ? WHERE id = 1`,
		stx.state.nextID, stx.state.supply, stx.state.lastSeq,
	); err != nil {
		return fmt.Errorf("saving ledger state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	for _, hook := range stx.hooks {
		hook()
	}
	return nil
}

func loadState(ctx context.Context, tx *sql.Tx) (ledgerState, error) {
	var st ledgerState
	err := tx.QueryRowContext(ctx,
		`SELECT next_token_id, total_does, last_event_seq FROM ledger_state WHERE id = 1`,
	).Scan(&st.nextID, &st.supply, &st.lastSeq)
	if err != nil {
		return ledgerState{}, fmt.Errorf("loading ledger state: %w", err)
	}
	return st, nil
}

type sqlTx struct {
	tx       *sql.Tx
	readOnly bool
	state    ledgerState
	hooks    []func()
}

func (t *sqlTx) GetBuck(ctx context.Context, id buck.TokenID) (buck.Buck, error) {
	var points, does, ready int64
	var style int
	err := t.tx.QueryRowContext(ctx,
		`SELECT points, fighting_style, does, ready_time FROM bucks WHERE token_id = ?`, int64(id),
	).Scan(&points, &style, &does, &ready)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

func (t *sqlTx) PutBuck(ctx context.Context, id buck.TokenID, b buck.Buck) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bucks SET points = ?, fighting_style = ?, does = ?, ready_time = ? WHERE token_id = ?`,
		int64(b.Points), int(b.FightingStyle), int64(b.Does), b.ReadyTime, int64(id),
	)
	if err != nil {
		return fmt.Errorf("updating buck %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating buck %d: %w", id, err)
	}
	if n == 0 {
		return buck.ErrNotFound
	}
	return nil
}

func (t *sqlTx) OwnerOf(ctx context.Context, id buck.TokenID) (buck.AccountID, error) {
	var owner string
	err := t.tx.QueryRowContext(ctx, `SELECT owner FROM bucks WHERE token_id = ?`, int64(id)).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", buck.ErrNotFound
		}
		return "", fmt.Errorf("querying owner of %d: %w", id, err)
	}
	return buck.AccountID(owner), nil
}

func (t *sqlTx) BalanceOf(ctx context.Context, account buck.AccountID, id buck.TokenID) (uint64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bucks WHERE token_id = ? AND owner = ?`, int64(id), string(account),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("querying balance of %d: %w", id, err)
	}
	return uint64(n), nil
}

func (t *sqlTx) MintTo(ctx context.Context, account buck.AccountID, id buck.TokenID, b buck.Buck) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bucks (token_id, owner, points, fighting_style, does, ready_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		int64(id), string(account), int64(b.Points), int(b.FightingStyle), int64(b.Does), b.ReadyTime,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return buck.ErrAlreadyMinted
		}
		return fmt.Errorf("inserting buck %d: %w", id, err)
	}
	t.state.supply += int64(b.Does)
	return nil
}

func (t *sqlTx) NextID(context.Context) (buck.TokenID, error) {
	if t.readOnly {
		return 0, ledger.ErrReadOnly
	}
	id := buck.TokenID(t.state.nextID)
	t.state.nextID++
	return id, nil
}

func (t *sqlTx) TotalDoes(context.Context) (uint64, error) {
	return uint64(t.state.supply), nil
}

func (t *sqlTx) AppendEvent(ctx context.Context, e *ledger.Event) error {
	if t.readOnly {
		return ledger.ErrReadOnly
	}
	newBuck, err := jsonColumn(e.NewBuck)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", e.Kind, err)
	}
	fight, err := jsonColumn(e.Fight)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", e.Kind, err)
	}
	seq := t.state.lastSeq + 1
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO events (seq, id, kind, occurred_at, new_buck, fight) VALUES (?, ?, ?, ?, ?, ?)`,
		seq, e.ID.String(), string(e.Kind), e.At.UTC().UnixNano(), newBuck, fight,
	)
	if err != nil {
		return fmt.Errorf("appending %s event: %w", e.Kind, err)
	}
	t.state.lastSeq = seq
	e.Seq = uint64(seq)
	return nil
}

func (t *sqlTx) Events(ctx context.Context, after uint64, limit int) ([]ledger.Event, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT seq, id, kind, occurred_at, new_buck, fight
		 FROM events WHERE seq > ? ORDER BY seq LIMIT ?`,
		int64(after), ledger.ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	out := []ledger.Event{}
	for rows.Next() {
		var (
			seq, at        int64
			id, kind       string
			newBuck, fight sql.NullString
		)
		if err := rows.Scan(&seq, &id, &kind, &at, &newBuck, &fight); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev := ledger.Event{
			Seq:  uint64(seq),
			Kind: ledger.EventKind(kind),
			At:   time.Unix(0, at).UTC(),
		}
		if ev.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("event %d id: %w", seq, err)
		}
		if newBuck.Valid {
			ev.NewBuck = &ledger.NewBuckEvent{}
			if err := json.Unmarshal([]byte(newBuck.String), ev.NewBuck); err != nil {
				return nil, fmt.Errorf("decoding event %d: %w", seq, err)
			}
		}
		if fight.Valid {
			ev.Fight = &ledger.FightEvent{}
			if err := json.Unmarshal([]byte(fight.String), ev.Fight); err != nil {
				return nil, fmt.Errorf("decoding event %d: %w", seq, err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return out, nil
}

func (t *sqlTx) AfterCommit(fn func()) {
	t.hooks = append(t.hooks, fn)
}

// jsonColumn encodes v for a nullable TEXT column; a nil pointer is NULL.
func jsonColumn[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
