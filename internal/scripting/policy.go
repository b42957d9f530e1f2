package scripting

import (
	"context"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
)

// MintHook is the global Lua function a policy script must define:
//
//	function can_mint(caller, owner, points, style, does) return true end
const MintHook = "can_mint"

// MintPolicy is a ledger.MintPolicy decided by a Lua script. Anything other
// than a boolean true result, including runtime errors and exhausting the
// instruction budget, denies the mint.
//
// MintPolicy is safe for concurrent use; calls are serialized on the VM.
type MintPolicy struct {
	mu        sync.Mutex
	L         *lua.LState
	instLimit int
	logger    *zap.Logger
}

var _ ledger.MintPolicy = (*MintPolicy)(nil)

// LoadMintPolicy compiles and runs the script at path.
//
// Precondition: path is a readable Lua file; instLimit <= 0 selects
// DefaultInstructionLimit.
// Postcondition: Returns an error if the script fails to load or does not
// define MintHook.
func LoadMintPolicy(path string, instLimit int, logger *zap.Logger) (*MintPolicy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scripting: reading %q: %w", path, err)
	}
	return NewMintPolicy(string(src), instLimit, logger)
}

// NewMintPolicy compiles and runs src.
func NewMintPolicy(src string, instLimit int, logger *zap.Logger) (*MintPolicy, error) {
	if instLimit <= 0 {
		instLimit = DefaultInstructionLimit
	}
	L := NewSandboxedState(logger)
	ctx, cancel := withInstructionLimit(context.Background(), instLimit)
	L.SetContext(ctx)
	err := L.DoString(src)
	L.RemoveContext()
	cancel()
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: loading mint policy: %w", err)
	}
	if L.GetGlobal(MintHook).Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("scripting: mint policy does not define %s", MintHook)
	}
	return &MintPolicy{L: L, instLimit: instLimit, logger: logger}, nil
}

// Allow implements ledger.MintPolicy.
func (p *MintPolicy) Allow(ctx context.Context, caller buck.AccountID, req ledger.MintRequest) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	callCtx, cancel := withInstructionLimit(ctx, p.instLimit)
	defer cancel()
	p.L.SetContext(callCtx)
	defer p.L.RemoveContext()

	err := p.L.CallByParam(lua.P{
		Fn:      p.L.GetGlobal(MintHook),
		NRet:    1,
		Protect: true,
	},
		lua.LString(caller),
		lua.LString(req.Owner),
		lua.LNumber(req.Points),
		lua.LNumber(req.FightingStyle),
		lua.LNumber(req.Does),
	)
	if err != nil {
		p.logger.Warn("scripting: mint policy runtime error",
			zap.String("caller", string(caller)),
			zap.Error(err),
		)
		return false, fmt.Errorf("scripting: %s: %w", MintHook, err)
	}

	ret := p.L.Get(-1)
	p.L.Pop(1)
	return ret == lua.LTrue, nil
}

// Close releases the VM.
func (p *MintPolicy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.L.Close()
}
