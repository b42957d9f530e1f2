package scripting

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

const adminScript = `
local admins = { ["0xdeployer"] = true }
function can_mint(caller, owner, points, style, does)
  if admins[caller] then return true end
  -- anyone may mint a weak, doeless buck to themselves
  return caller == owner and points <= 5 and does == 0
end
`

func TestMintPolicy_Allow(t *testing.T) {
	p, err := NewMintPolicy(adminScript, 0, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	ok, err := p.Allow(ctx, "0xdeployer", ledger.MintRequest{Owner: "0xuser1", Points: 14, Does: 69})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Allow(ctx, "0xuser1", ledger.MintRequest{Owner: "0xuser1", Points: 3})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Allow(ctx, "0xuser1", ledger.MintRequest{Owner: "0xuser2", Points: 3})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMintPolicy_NonBooleanDenies(t *testing.T) {
	p, err := NewMintPolicy(`function can_mint() return "yes" end`, 0, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()
	ok, err := p.Allow(context.Background(), "a", ledger.MintRequest{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMintPolicy_RuntimeErrorDenies(t *testing.T) {
	p, err := NewMintPolicy(`function can_mint() error("nope") end`, 0, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()
	ok, err := p.Allow(context.Background(), "a", ledger.MintRequest{})
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestMintPolicy_InstructionLimit(t *testing.T) {
	p, err := NewMintPolicy(`function can_mint() while true do end return true end`, 1000, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()
	ok, err := p.Allow(context.Background(), "a", ledger.MintRequest{})
	assert.Error(t, err)
	assert.False(t, ok)

	// The budget is per call, so a well-behaved call afterwards still runs.
	require.NoError(t, p.L.DoString(`function can_mint() return true end`))
	ok, err = p.Allow(context.Background(), "a", ledger.MintRequest{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewMintPolicy_MissingHook(t *testing.T) {
	_, err := NewMintPolicy(`x = 1`, 0, zap.NewNop())
	assert.Error(t, err)
}

func TestNewMintPolicy_SyntaxError(t *testing.T) {
	_, err := NewMintPolicy(`function can_mint(`, 0, zap.NewNop())
	assert.Error(t, err)
}

func TestSandbox_DangerousGlobalsRemoved(t *testing.T) {
	L := NewSandboxedState(zap.NewNop())
	defer L.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require", "os", "io"} {
		assert.Equal(t, "nil", L.GetGlobal(name).Type().String(), name)
	}
}

func TestSandbox_PrintGoesToLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	L := NewSandboxedState(zap.New(core))
	defer L.Close()

	require.NoError(t, L.DoString(`print("minted", 3, true)`))
	entries := logs.FilterMessage("lua print").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "minted\t3\ttrue", entries[0].ContextMap()["msg"])
}

func TestLoadMintPolicy_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mint.lua")
	require.NoError(t, os.WriteFile(path, []byte(adminScript), 0o644))
	p, err := LoadMintPolicy(path, 0, zap.NewNop())
	require.NoError(t, err)
	p.Close()

	_, err = LoadMintPolicy(filepath.Join(t.TempDir(), "missing.lua"), 0, zap.NewNop())
	assert.Error(t, err)
}

func TestLoadMintPolicy_ShippedPolicy(t *testing.T) {
	p, err := LoadMintPolicy(filepath.Join("..", "..", "content", "policies", "mint.lua"), 0, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()
	ctx := context.Background()

	ok, err := p.Allow(ctx, "0xdeployer", ledger.MintRequest{Owner: "0xuser1", Points: 14, FightingStyle: 1, Does: 69})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Allow(ctx, "0xuser1", ledger.MintRequest{Owner: "0xuser1", Points: 14, Does: 69})
	require.NoError(t, err)
	assert.False(t, ok)
}
