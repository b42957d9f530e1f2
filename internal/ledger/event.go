package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
)

// EventKind names an event type.
type EventKind string

const (
	EventNewBuck EventKind = "NewBuck"
	EventFight   EventKind = "Fight"
)

// NewBuckEvent is emitted once per successful mint.
type NewBuckEvent struct {
	ID     buck.TokenID   `json:"id"`
	To     buck.AccountID `json:"to"`
	Points uint32         `json:"points"`
	Does   uint64         `json:"does"`
}

// FightEvent is emitted once per resolved fight. Seed is the entropy the
// outcome was rolled from, revealed after commit.
type FightEvent struct {
	AttackerID buck.TokenID `json:"attacker_id"`
	DefenderID buck.TokenID `json:"defender_id"`
	DoesMoved  uint64       `json:"does_moved"`
	Outcome    buck.Outcome `json:"outcome"`
	Seed       []byte       `json:"seed,omitempty"`
}

// Event is one entry of the append-only log. Exactly one of NewBuck and
// Fight is set, matching Kind.
type Event struct {
	Seq     uint64
	ID      uuid.UUID
	Kind    EventKind
	At      time.Time
	NewBuck *NewBuckEvent
	Fight   *FightEvent
}

// NewBuckCreated builds a NewBuck event stamped at.
func NewBuckCreated(at time.Time, e NewBuckEvent) *Event {
	return &Event{ID: uuid.New(), Kind: EventNewBuck, At: at.UTC(), NewBuck: &e}
}

// FightResolved builds a Fight event stamped at.
func FightResolved(at time.Time, e FightEvent) *Event {
	return &Event{ID: uuid.New(), Kind: EventFight, At: at.UTC(), Fight: &e}
}
