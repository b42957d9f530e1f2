package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
)

// MintRequest carries the attributes of a buck to create.
type MintRequest struct {
	Owner         buck.AccountID
	Points        uint32
	FightingStyle buck.FightingStyle
	Does          uint64
}

// StyleSet reports which fighting styles exist.
type StyleSet interface {
	Known(style buck.FightingStyle) bool
}

// Minter creates bucks.
type Minter struct {
	store  Store
	policy MintPolicy
	styles StyleSet
	bus    *Bus
	clock  Clock
	logger *zap.Logger
}

// NewMinter creates a Minter.
//
// Precondition: every argument is non-nil.
func NewMinter(store Store, policy MintPolicy, styles StyleSet, bus *Bus, clock Clock, logger *zap.Logger) *Minter {
	return &Minter{
		store:  store,
		policy: policy,
		styles: styles,
		bus:    bus,
		clock:  clock,
		logger: logger,
	}
}

// CreateBuck mints a new buck owned by req.Owner on behalf of caller.
//
// Precondition failures: buck.ErrUnauthorized when the policy refuses caller,
// checked before buck.ErrInvalidAttributes for an empty owner or unknown style.
//
// Postcondition: On success the returned id is the next sequential id, the
// owner holds balance 1, attributes are stored with ReadyTime 0 and exactly
// one NewBuck event is logged and published. On error nothing is written.
func (m *Minter) CreateBuck(ctx context.Context, caller buck.AccountID, req MintRequest) (buck.TokenID, error) {
	// The policy sees the request before any attribute is validated.
	ok, err := m.policy.Allow(ctx, caller, req)
	if err != nil {
		m.logger.Warn("mint policy error",
			zap.String("caller", string(caller)),
			zap.Error(err),
		)
		return 0, fmt.Errorf("mint policy: %v: %w", err, buck.ErrUnauthorized)
	}
	if !ok {
		return 0, fmt.Errorf("caller %q may not mint: %w", caller, buck.ErrUnauthorized)
	}
	if !req.Owner.Valid() {
		return 0, fmt.Errorf("owner must not be empty: %w", buck.ErrInvalidAttributes)
	}
	if !m.styles.Known(req.FightingStyle) {
		return 0, fmt.Errorf("fighting style %d: %w", req.FightingStyle, buck.ErrInvalidAttributes)
	}

	var id buck.TokenID
	err = m.store.Update(ctx, func(tx Tx) error {
		supply, err := tx.TotalDoes(ctx)
		if err != nil {
			return err
		}
		if req.Does >= buck.DrawSentinel || supply+req.Does >= buck.DrawSentinel {
			return fmt.Errorf("minting %d does onto supply %d: %w", req.Does, supply, buck.ErrSupplyExceeded)
		}

		id, err = tx.NextID(ctx)
		if err != nil {
			return fmt.Errorf("reserving token id: %w", err)
		}
		b := buck.Buck{
			Points:        req.Points,
			FightingStyle: req.FightingStyle,
			Does:          req.Does,
		}
		if err := tx.MintTo(ctx, req.Owner, id, b); err != nil {
			if errors.Is(err, buck.ErrAlreadyMinted) {
				m.logger.Error("token id collision", zap.Stringer("id", id))
			}
			return fmt.Errorf("minting buck %s: %w", id, err)
		}

		ev := NewBuckCreated(m.clock.Now(), NewBuckEvent{
			ID:     id,
			To:     req.Owner,
			Points: req.Points,
			Does:   req.Does,
		})
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return fmt.Errorf("logging mint event: %w", err)
		}
		tx.AfterCommit(func() { m.bus.Publish(*ev) })
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.logger.Info("buck minted",
		zap.Stringer("id", id),
		zap.String("owner", string(req.Owner)),
		zap.String("caller", string(caller)),
		zap.Uint32("points", req.Points),
		zap.Uint8("fighting_style", uint8(req.FightingStyle)),
		zap.Uint64("does", req.Does),
	)
	return id, nil
}
