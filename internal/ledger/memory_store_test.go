package ledger_test

import (
	"testing"

	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger/ledgertest"
)

func TestMemoryStore_Conformance(t *testing.T) {
	ledgertest.Run(t, func(*testing.T) ledger.Store { return ledger.NewMemoryStore() })
}
