package main

import (
	"bytes"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

func TestTokenArgs(t *testing.T) {
	f := flag.NewFlagSet("fight", flag.ContinueOnError)
	f.SetOutput(io.Discard)
	require.NoError(t, f.Parse([]string{"3", "7"}))
	ids, err := tokenArgs(f, 2)
	require.NoError(t, err)
	assert.Equal(t, []buck.TokenID{3, 7}, ids)

	_, err = tokenArgs(f, 1)
	assert.Error(t, err)

	require.NoError(t, f.Parse([]string{"--", "-1"}))
	_, err = tokenArgs(f, 1)
	assert.Error(t, err, "negative ids are not token ids")

	require.NoError(t, f.Parse([]string{"x"}))
	_, err = tokenArgs(f, 1)
	assert.Error(t, err)

	assert.Error(t, f.Parse([]string{"-1"}), "a bare negative id reads as an unknown flag")
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = orig })

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	printEvent(ledger.Event{Seq: 1, ID: uuid.New(), Kind: ledger.EventNewBuck, At: at,
		NewBuck: &ledger.NewBuckEvent{ID: 0, To: "0xuser1", Points: 14, Does: 69}})
	printEvent(ledger.Event{Seq: 2, ID: uuid.New(), Kind: ledger.EventFight, At: at,
		Fight: &ledger.FightEvent{AttackerID: 0, DefenderID: 1, Outcome: buck.Draw, DoesMoved: buck.DrawSentinel}})

	assert.Equal(t,
		"1 2024-01-02T03:04:05Z NewBuck id=0 to=0xuser1 points=14 does=69\n"+
			"2 2024-01-02T03:04:05Z Fight attacker=0 defender=1 outcome=draw does_moved=4200000000\n",
		buf.String())
}
