package buck

// Outcome is the result of a fight from the attacker's side.
type Outcome int

const (
	Draw Outcome = iota
	Win
	Lose
)

// String returns a lowercase outcome label.
func (o Outcome) String() string {
	switch o {
	case Draw:
		return "draw"
	case Win:
		return "win"
	case Lose:
		return "lose"
	default:
		return "unknown"
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, bool) {
	switch s {
	case "draw":
		return Draw, true
	case "win":
		return Win, true
	case "lose":
		return Lose, true
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	v, ok := ParseOutcome(string(b))
	if !ok {
		return ErrInvalidAttributes
	}
	*o = v
	return nil
}
