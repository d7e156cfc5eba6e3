package core

import (
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/btcsuite/fastsha256"
)

// canonicalTx is the signature-free form of a transaction used for hashing and signing.
// Field order is fixed: sender, recipient, amount.
type canonicalTx struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    Amount `json:"amount"`
}

// canonicalBlock lists its keys in sorted order.
type canonicalBlock struct {
	Index        int           `json:"index"`
	PreviousHash string        `json:"previous_hash"`
	Proof        int           `json:"proof"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []canonicalTx `json:"transactions"`
}

func canonicalTxs(txs []Transaction) []canonicalTx {
	out := make([]canonicalTx, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.canonical())
	}
	return out
}

func (tx Transaction) canonical() canonicalTx {
	return canonicalTx{Sender: tx.Sender, Recipient: tx.Recipient, Amount: tx.Amount}
}

// SigningBytes returns the payload a wallet signs for tx.
func (tx Transaction) SigningBytes() []byte {
	data, _ := json.Marshal(tx.canonical())
	return data
}

// HashBlock returns the hex encoded SHA-256 of the canonical form of b.
// Signatures do not take part in the hash.
func HashBlock(b Block) string {
	data, _ := json.Marshal(canonicalBlock{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Proof:        b.Proof,
		Timestamp:    b.Timestamp,
		Transactions: canonicalTxs(b.Transactions),
	})
	return hashHex(data)
}

// PuzzleInput is the byte string hashed when checking a proof:
// the canonical transaction list, then the previous hash, then the proof in decimal.
func PuzzleInput(txs []Transaction, lastHash string, proof int) []byte {
	return strconv.AppendInt(puzzlePrefix(txs, lastHash), int64(proof), 10)
}

func puzzlePrefix(txs []Transaction, lastHash string) []byte {
	data, _ := json.Marshal(canonicalTxs(txs))
	return append(data, lastHash...)
}

func hashHex(data []byte) string {
	sum := fastsha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
