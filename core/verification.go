package core

import (
	"log/slog"
)

// Verifier checks transaction signatures. It is implemented by the wallet package.
type Verifier interface {
	Verify(tx Transaction) bool
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(tx Transaction) bool

func (f VerifierFunc) Verify(tx Transaction) bool { return f(tx) }

// VerifyTransaction validates a single transaction. Rewards always pass. With
// requireFunds the sender must also hold at least the amount according to balance.
func VerifyTransaction(tx Transaction, balance func(participant string) Amount, requireFunds bool, v Verifier) bool {
	if tx.IsReward() {
		return true
	}
	if tx.Amount < 0 {
		return false
	}
	if requireFunds && balance(tx.Sender) < tx.Amount {
		return false
	}
	return v.Verify(tx)
}

// VerifyTransactions checks the signature of every transaction in txs.
func VerifyTransactions(txs []Transaction, v Verifier) bool {
	for _, tx := range txs {
		if !VerifyTransaction(tx, nil, false, v) {
			return false
		}
	}
	return true
}

// VerifyChainTransactions checks the signature of every transaction in every
// block after the first.
func VerifyChainTransactions(chain []Block, v Verifier) bool {
	for i := 1; i < len(chain); i++ {
		if !VerifyTransactions(chain[i].Transactions, v) {
			slog.Debug("chain verification failed", "index", i, "reason", "bad signature")
			return false
		}
	}
	return true
}

// VerifyChain checks linkage and proof of every block after the first.
// The first block is trusted as is.
func VerifyChain(chain []Block) bool {
	for i := 1; i < len(chain); i++ {
		b := chain[i]
		if b.PreviousHash != HashBlock(chain[i-1]) {
			slog.Debug("chain verification failed", "index", i, "reason", "previous hash mismatch")
			return false
		}
		if !ValidProof(b.Payload(), b.PreviousHash, b.Proof) {
			slog.Debug("chain verification failed", "index", i, "reason", "invalid proof")
			return false
		}
	}
	return true
}
