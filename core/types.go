package core

// MiningSender is the sender of the reward transaction closing every mined block.
const MiningSender = "MINING"

// MiningReward is credited to the miner of each block.
var MiningReward = Coins(10)

// Transaction represents a transfer of coins between two participants.
type Transaction struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Amount    Amount `json:"amount"`
	Signature string `json:"signature"` // hex encoded
}

// IsReward reports whether tx is a mining reward.
func (tx Transaction) IsReward() bool {
	return tx.Sender == MiningSender
}

// Equal compares the signed fields of two transactions.
func (tx Transaction) Equal(o Transaction) bool {
	return tx.Sender == o.Sender && tx.Recipient == o.Recipient && tx.Amount == o.Amount
}

// Same compares every field, signature included.
func (tx Transaction) Same(o Transaction) bool {
	return tx.Equal(o) && tx.Signature == o.Signature
}

// NewReward builds the reward transaction paying MiningReward to miner.
func NewReward(miner string) Transaction {
	return Transaction{
		Sender:    MiningSender,
		Recipient: miner,
		Amount:    MiningReward,
	}
}
