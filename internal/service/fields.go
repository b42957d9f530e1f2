package service

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/game/dice"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

const timeLayout = time.RFC3339Nano

// maxExactInt is the largest integer a JSON number carries without loss.
const maxExactInt = 1 << 53

// Request and response field names.
const (
	fieldID            = "id"
	fieldOwner         = "owner"
	fieldAccount       = "account"
	fieldPoints        = "points"
	fieldFightingStyle = "fighting_style"
	fieldDoes          = "does"
	fieldReadyTime     = "ready_time"
	fieldAttackerID    = "attacker_id"
	fieldDefenderID    = "defender_id"
	fieldDoesMoved     = "does_moved"
	fieldOutcome       = "outcome"
	fieldAttackerScore = "attacker_score"
	fieldDefenderScore = "defender_score"
	fieldSeed          = "seed"
	fieldBalance       = "balance"
	fieldURI           = "uri"
	fieldExpanded      = "expanded"
	fieldAfter         = "after"
	fieldLimit         = "limit"
	fieldEvents        = "events"
	fieldSeq           = "seq"
	fieldKind          = "kind"
	fieldAt            = "at"
	fieldTo            = "to"
	fieldTokenID       = "token_id"
)

// uintField reads a non-negative integer that may be sent as a JSON number
// or, above 2^53, as a decimal string.
func uintField(s *structpb.Struct, key string, max uint64) (uint64, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	var n uint64
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f < 0 || f != math.Trunc(f) || f > maxExactInt {
			return 0, fmt.Errorf("field %q must be a non-negative integer, got %v", key, f)
		}
		n = uint64(f)
	case *structpb.Value_StringValue:
		parsed, err := strconv.ParseUint(k.StringValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("field %q must be a number", key)
	}
	if n > max {
		return 0, fmt.Errorf("field %q exceeds %d", key, max)
	}
	return n, nil
}

func optionalUint(s *structpb.Struct, key string, max uint64) (uint64, error) {
	if _, ok := s.GetFields()[key]; !ok {
		return 0, nil
	}
	return uintField(s, key, max)
}

func stringField(s *structpb.Struct, key string) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", key)
	}
	return sv.StringValue, nil
}

func tokenField(s *structpb.Struct, key string) (buck.TokenID, error) {
	n, err := uintField(s, key, math.MaxUint64)
	return buck.TokenID(n), err
}

func accountField(s *structpb.Struct, key string) (buck.AccountID, error) {
	v, err := stringField(s, key)
	return buck.AccountID(v), err
}

// uintValue encodes n as a number when exact and as a decimal string otherwise.
func uintValue(n uint64) *structpb.Value {
	if n > maxExactInt {
		return structpb.NewStringValue(strconv.FormatUint(n, 10))
	}
	return structpb.NewNumberValue(float64(n))
}

func newStruct(fields map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: fields}
}

func mintRequestFromStruct(s *structpb.Struct) (ledger.MintRequest, error) {
	owner, err := accountField(s, fieldOwner)
	if err != nil {
		return ledger.MintRequest{}, err
	}
	points, err := uintField(s, fieldPoints, math.MaxUint32)
	if err != nil {
		return ledger.MintRequest{}, err
	}
	style, err := uintField(s, fieldFightingStyle, math.MaxUint8)
	if err != nil {
		return ledger.MintRequest{}, err
	}
	does, err := uintField(s, fieldDoes, math.MaxUint64)
	if err != nil {
		return ledger.MintRequest{}, err
	}
	return ledger.MintRequest{
		Owner:         owner,
		Points:        uint32(points),
		FightingStyle: buck.FightingStyle(style),
		Does:          does,
	}, nil
}

func mintRequestToStruct(req ledger.MintRequest) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		fieldOwner:         structpb.NewStringValue(string(req.Owner)),
		fieldPoints:        uintValue(uint64(req.Points)),
		fieldFightingStyle: uintValue(uint64(req.FightingStyle)),
		fieldDoes:          uintValue(req.Does),
	})
}

func buckToStruct(id buck.TokenID, b buck.Buck) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		fieldID:            uintValue(uint64(id)),
		fieldPoints:        uintValue(uint64(b.Points)),
		fieldFightingStyle: uintValue(uint64(b.FightingStyle)),
		fieldDoes:          uintValue(b.Does),
		fieldReadyTime:     structpb.NewNumberValue(float64(b.ReadyTime)),
	})
}

func buckFromStruct(s *structpb.Struct) (buck.Buck, error) {
	points, err := uintField(s, fieldPoints, math.MaxUint32)
	if err != nil {
		return buck.Buck{}, err
	}
	style, err := uintField(s, fieldFightingStyle, math.MaxUint8)
	if err != nil {
		return buck.Buck{}, err
	}
	does, err := uintField(s, fieldDoes, math.MaxUint64)
	if err != nil {
		return buck.Buck{}, err
	}
	return buck.Buck{
		Points:        uint32(points),
		FightingStyle: buck.FightingStyle(style),
		Does:          does,
		ReadyTime:     int64(s.GetFields()[fieldReadyTime].GetNumberValue()),
	}, nil
}

// FightResult is the client view of a resolved fight.
type FightResult struct {
	AttackerID    buck.TokenID
	DefenderID    buck.TokenID
	Outcome       buck.Outcome
	DoesMoved     uint64
	AttackerScore int
	DefenderScore int
	ReadyTime     int64
	Seed          dice.Seed
}

func fightResultToStruct(r FightResult) *structpb.Struct {
	return newStruct(map[string]*structpb.Value{
		fieldAttackerID:    uintValue(uint64(r.AttackerID)),
		fieldDefenderID:    uintValue(uint64(r.DefenderID)),
		fieldOutcome:       structpb.NewStringValue(r.Outcome.String()),
		fieldDoesMoved:     uintValue(r.DoesMoved),
		fieldAttackerScore: structpb.NewNumberValue(float64(r.AttackerScore)),
		fieldDefenderScore: structpb.NewNumberValue(float64(r.DefenderScore)),
		fieldReadyTime:     structpb.NewNumberValue(float64(r.ReadyTime)),
		fieldSeed:          structpb.NewStringValue(hex.EncodeToString(r.Seed[:])),
	})
}

func fightResultFromStruct(s *structpb.Struct) (FightResult, error) {
	var r FightResult
	var err error
	if r.AttackerID, err = tokenField(s, fieldAttackerID); err != nil {
		return r, err
	}
	if r.DefenderID, err = tokenField(s, fieldDefenderID); err != nil {
		return r, err
	}
	if r.DoesMoved, err = uintField(s, fieldDoesMoved, math.MaxUint64); err != nil {
		return r, err
	}
	outcome, err := stringField(s, fieldOutcome)
	if err != nil {
		return r, err
	}
	var ok bool
	if r.Outcome, ok = buck.ParseOutcome(outcome); !ok {
		return r, fmt.Errorf("unknown outcome %q", outcome)
	}
	seedHex, err := stringField(s, fieldSeed)
	if err != nil {
		return r, err
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != dice.SeedSize {
		return r, fmt.Errorf("field %q must be %d hex-encoded bytes", fieldSeed, dice.SeedSize)
	}
	copy(r.Seed[:], seed)
	fields := s.GetFields()
	r.AttackerScore = int(fields[fieldAttackerScore].GetNumberValue())
	r.DefenderScore = int(fields[fieldDefenderScore].GetNumberValue())
	r.ReadyTime = int64(fields[fieldReadyTime].GetNumberValue())
	return r, nil
}

// eventToStruct renders e with its payload flattened beside seq, id, kind
// and at.
func eventToStruct(e ledger.Event) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldSeq:  uintValue(e.Seq),
		fieldID:   structpb.NewStringValue(e.ID.String()),
		fieldKind: structpb.NewStringValue(string(e.Kind)),
		fieldAt:   structpb.NewStringValue(e.At.Format(timeLayout)),
	}
	switch {
	case e.NewBuck != nil:
		fields[fieldTokenID] = uintValue(uint64(e.NewBuck.ID))
		fields[fieldTo] = structpb.NewStringValue(string(e.NewBuck.To))
		fields[fieldPoints] = uintValue(uint64(e.NewBuck.Points))
		fields[fieldDoes] = uintValue(e.NewBuck.Does)
	case e.Fight != nil:
		fields[fieldAttackerID] = uintValue(uint64(e.Fight.AttackerID))
		fields[fieldDefenderID] = uintValue(uint64(e.Fight.DefenderID))
		fields[fieldDoesMoved] = uintValue(e.Fight.DoesMoved)
		fields[fieldOutcome] = structpb.NewStringValue(e.Fight.Outcome.String())
		fields[fieldSeed] = structpb.NewStringValue(hex.EncodeToString(e.Fight.Seed))
	}
	return newStruct(fields)
}

func eventFromStruct(s *structpb.Struct) (ledger.Event, error) {
	var e ledger.Event
	seq, err := uintField(s, fieldSeq, math.MaxUint64)
	if err != nil {
		return e, err
	}
	e.Seq = seq
	idStr, err := stringField(s, fieldID)
	if err != nil {
		return e, err
	}
	if e.ID, err = uuid.Parse(idStr); err != nil {
		return e, fmt.Errorf("field %q: %w", fieldID, err)
	}
	kind, err := stringField(s, fieldKind)
	if err != nil {
		return e, err
	}
	e.Kind = ledger.EventKind(kind)
	at, err := stringField(s, fieldAt)
	if err != nil {
		return e, err
	}
	if e.At, err = time.Parse(timeLayout, at); err != nil {
		return e, fmt.Errorf("field %q: %w", fieldAt, err)
	}

	switch e.Kind {
	case ledger.EventNewBuck:
		var nb ledger.NewBuckEvent
		if nb.ID, err = tokenField(s, fieldTokenID); err != nil {
			return e, err
		}
		if nb.To, err = accountField(s, fieldTo); err != nil {
			return e, err
		}
		points, err := uintField(s, fieldPoints, math.MaxUint32)
		if err != nil {
			return e, err
		}
		nb.Points = uint32(points)
		if nb.Does, err = uintField(s, fieldDoes, math.MaxUint64); err != nil {
			return e, err
		}
		e.NewBuck = &nb
	case ledger.EventFight:
		var f ledger.FightEvent
		if f.AttackerID, err = tokenField(s, fieldAttackerID); err != nil {
			return e, err
		}
		if f.DefenderID, err = tokenField(s, fieldDefenderID); err != nil {
			return e, err
		}
		if f.DoesMoved, err = uintField(s, fieldDoesMoved, math.MaxUint64); err != nil {
			return e, err
		}
		outcome, err := stringField(s, fieldOutcome)
		if err != nil {
			return e, err
		}
		var ok bool
		if f.Outcome, ok = buck.ParseOutcome(outcome); !ok {
			return e, fmt.Errorf("unknown outcome %q", outcome)
		}
		seedHex, err := stringField(s, fieldSeed)
		if err != nil {
			return e, err
		}
		if f.Seed, err = hex.DecodeString(seedHex); err != nil {
			return e, fmt.Errorf("field %q: %w", fieldSeed, err)
		}
		if len(f.Seed) == 0 {
			f.Seed = nil
		}
		e.Fight = &f
	default:
		return e, fmt.Errorf("unknown event kind %q", kind)
	}
	return e, nil
}
