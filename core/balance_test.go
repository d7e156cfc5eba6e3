package core_test

import (
	"testing"

	"github.com/Artfain/powchain/core"
	"github.com/stretchr/testify/require"
)

func TestBalance(t *testing.T) {
	chain := []core.Block{
		core.Genesis(),
		{Index: 1, Transactions: []core.Transaction{core.NewReward("alice")}},
		{Index: 2, Transactions: []core.Transaction{
			signedTx("alice", "bob", core.Coins(4)),
			core.NewReward("bob"),
		}},
	}
	open := []core.Transaction{
		signedTx("alice", "carol", core.Coins(1)),
		signedTx("bob", "alice", core.Coins(2)),
	}

	// Pending receipts do not count, pending spends do.
	require.Equal(t, core.Coins(5), core.Balance(chain, open, "alice"))
	require.Equal(t, core.Coins(12), core.Balance(chain, open, "bob"))
	require.Equal(t, core.Amount(0), core.Balance(chain, open, "carol"))
	require.Equal(t, core.Balance(chain, open, "alice"), core.Balance(chain, open, "alice"))
}
