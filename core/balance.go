package core

// Balance returns what participant received in confirmed blocks minus what it
// sent in confirmed blocks and in the open pool. Pending receipts are not
// counted, so coins cannot be spent before they are mined. The sums cannot
// overflow for chains accepted by the node, see Volume.
func Balance(chain []Block, open []Transaction, participant string) Amount {
	var received, sent Amount
	for _, b := range chain {
		for _, tx := range b.Transactions {
			if tx.Recipient == participant {
				received += tx.Amount
			}
			if tx.Sender == participant {
				sent += tx.Amount
			}
		}
	}
	for _, tx := range open {
		if tx.Sender == participant {
			sent += tx.Amount
		}
	}
	return received - sent
}
