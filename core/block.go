package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedChain is returned for chains that are empty or whose indices are not contiguous.
var ErrMalformedChain = errors.New("malformed chain")

// Block represents a block in the chain.
type Block struct {
	Index        int           `json:"index"`
	PreviousHash string        `json:"previous_hash"`
	Transactions []Transaction `json:"transactions"`
	Proof        int           `json:"proof"`
	Timestamp    int64         `json:"timestamp"` // unix nanoseconds
}

// Genesis returns the fixed first block every node starts from.
func Genesis() Block {
	return Block{
		Index:        0,
		PreviousHash: "",
		Transactions: []Transaction{},
		Proof:        100,
		Timestamp:    0,
	}
}

func NewBlock(prev Block, transactions []Transaction, proof int) Block {
	return Block{
		Index:        prev.Index + 1,
		PreviousHash: HashBlock(prev),
		Transactions: transactions,
		Proof:        proof,
		Timestamp:    time.Now().UnixNano(),
	}
}

// Hash returns the canonical hash of the block.
func (b Block) Hash() string {
	return HashBlock(b)
}

// Payload returns the transactions covered by the proof, i.e. all but the trailing reward.
func (b Block) Payload() []Transaction {
	if len(b.Transactions) == 0 {
		return nil
	}
	return b.Transactions[:len(b.Transactions)-1]
}

// CheckStructure rejects chains that cannot be a chain at all: empty ones,
// ones whose indices do not count up from zero and ones whose amounts are
// negative or add up past the range of an Amount. It says nothing about proofs
// or linkage, see VerifyChain.
func CheckStructure(chain []Block) error {
	if len(chain) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformedChain)
	}
	for i, b := range chain {
		if b.Index != i {
			return fmt.Errorf("%w: block at position %d has index %d", ErrMalformedChain, i, b.Index)
		}
	}
	if _, err := Volume(chain); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedChain, err)
	}
	return nil
}

// Volume returns the sum of every amount moved by chain. No balance computed
// over a chain whose volume fits in an Amount can overflow.
func Volume(chain []Block) (Amount, error) {
	var total Amount
	for _, b := range chain {
		var err error
		if total, err = addVolume(total, b.Transactions); err != nil {
			return 0, fmt.Errorf("block %d: %w", b.Index, err)
		}
	}
	return total, nil
}

func addVolume(total Amount, txs []Transaction) (Amount, error) {
	for _, tx := range txs {
		if tx.Amount < 0 {
			return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, tx.Amount)
		}
		var ok bool
		if total, ok = total.Add(tx.Amount); !ok {
			return 0, fmt.Errorf("%w: total volume overflows", ErrInvalidAmount)
		}
	}
	return total, nil
}

func cloneChain(chain []Block) []Block {
	out := make([]Block, len(chain))
	for i, b := range chain {
		out[i] = b
		out[i].Transactions = make([]Transaction, len(b.Transactions))
		copy(out[i].Transactions, b.Transactions)
	}
	return out
}
