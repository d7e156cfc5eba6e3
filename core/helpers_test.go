package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Artfain/powchain/core"
	"github.com/stretchr/testify/require"
)

// stubVerifier accepts transactions signed by sign.
var stubVerifier = core.VerifierFunc(func(tx core.Transaction) bool {
	return tx.Signature == sign(tx)
})

func sign(tx core.Transaction) string {
	return fmt.Sprintf("sig(%s)", tx.SigningBytes())
}

func signedTx(sender, recipient string, amount core.Amount) core.Transaction {
	tx := core.Transaction{Sender: sender, Recipient: recipient, Amount: amount}
	tx.Signature = sign(tx)
	return tx
}

// fakeTransport routes requests straight to in-process nodes.
// Addresses without a node are unreachable.
type fakeTransport struct {
	mutex sync.Mutex
	nodes map[string]*core.Node
	txs   []core.Transaction
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nodes: make(map[string]*core.Node)}
}

func (f *fakeTransport) add(addr string, n *core.Node) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.nodes[addr] = n
}

func (f *fakeTransport) node(addr string) (*core.Node, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	n, ok := f.nodes[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrPeerUnreachable, addr)
	}
	return n, nil
}

func (f *fakeTransport) FetchChain(ctx context.Context, peer string) ([]core.Block, error) {
	n, err := f.node(peer)
	if err != nil {
		return nil, err
	}
	return n.Chain(), nil
}

func (f *fakeTransport) PostTransaction(ctx context.Context, peer string, tx core.Transaction) error {
	n, err := f.node(peer)
	if err != nil {
		return err
	}
	f.mutex.Lock()
	f.txs = append(f.txs, tx)
	f.mutex.Unlock()
	return n.ReceiveTransaction(tx)
}

func (f *fakeTransport) PostBlock(ctx context.Context, peer string, b core.Block) error {
	n, err := f.node(peer)
	if err != nil {
		return err
	}
	err = n.AddBlock(b)
	if err != nil && !errors.Is(err, core.ErrChainBehind) {
		return fmt.Errorf("%w: %v", core.ErrBlockDeclined, err)
	}
	return nil
}

// chainTransport serves fixed chains and accepts everything posted.
type chainTransport map[string][]core.Block

func (c chainTransport) FetchChain(ctx context.Context, peer string) ([]core.Block, error) {
	chain, ok := c[peer]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrPeerUnreachable, peer)
	}
	return chain, nil
}

func (chainTransport) PostTransaction(context.Context, string, core.Transaction) error { return nil }
func (chainTransport) PostBlock(context.Context, string, core.Block) error { return nil }

// sealBlock builds the successor of prev carrying txs with a valid proof.
// The last transaction is left out of the proof like a reward.
func sealBlock(t *testing.T, prev core.Block, txs ...core.Transaction) core.Block {
	t.Helper()
	proof, err := core.ProofOfWork(context.Background(), txs[:len(txs)-1], prev.Hash())
	require.NoError(t, err)
	return core.NewBlock(prev, txs, proof)
}

// mineN mines n blocks on node and fails the test on any error.
func mineN(t *testing.T, node *core.Node, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := node.Mine(context.Background())
		require.NoError(t, err)
	}
}
