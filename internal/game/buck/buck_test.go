package buck_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
)

func TestTokenID_Hex(t *testing.T) {
	assert.Equal(t, "0000000000000000000000000000000000000000000000000000000000000001", buck.TokenID(1).Hex())
	assert.Equal(t, "00000000000000000000000000000000000000000000000000000000000000ff", buck.TokenID(255).Hex())
}

func TestAccountID_Valid(t *testing.T) {
	assert.True(t, buck.AccountID("0xabc").Valid())
	assert.False(t, buck.AccountID("").Valid())
	assert.False(t, buck.AccountID("   ").Valid())
}

func TestBuck_Ready(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := buck.Buck{ReadyTime: now.Unix() + 60}
	assert.False(t, b.Ready(now))
	assert.Equal(t, 60*time.Second, b.CooldownRemaining(now))
	assert.True(t, b.Ready(now.Add(time.Minute)))
	assert.Zero(t, b.CooldownRemaining(now.Add(2*time.Minute)))
}

// Property: a fresh buck (ReadyTime 0) is ready at any non-negative unix time.
func TestPropertyFreshBuckAlwaysReady(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sec := rapid.Int64Range(0, 1<<40).Draw(rt, "sec")
		b := buck.Buck{Points: rapid.Uint32().Draw(rt, "points")}
		if !b.Ready(time.Unix(sec, 0)) {
			rt.Fatalf("fresh buck not ready at %d", sec)
		}
	})
}

func TestOutcome_RoundTrip(t *testing.T) {
	for _, o := range []buck.Outcome{buck.Draw, buck.Win, buck.Lose} {
		b, err := o.MarshalText()
		assert.NoError(t, err)
		var got buck.Outcome
		assert.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, o, got)
	}
	var o buck.Outcome
	assert.ErrorIs(t, o.UnmarshalText([]byte("tie")), buck.ErrInvalidAttributes)
	assert.Equal(t, "unknown", buck.Outcome(9).String())
}
