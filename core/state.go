package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidBlock       = errors.New("invalid block")
	ErrStaleBlock         = errors.New("block is not ahead of local chain")
	ErrChainBehind        = errors.New("local chain is behind")
	ErrForkDetected       = errors.New("block does not link to local head")
	ErrNoWallet           = errors.New("node has no wallet")
	ErrConflictPending    = errors.New("conflict resolution pending")
	ErrInvalidPeer        = errors.New("invalid peer address")
)

// Observer is notified of ledger changes after they are committed.
// Calls happen outside the node lock.
type Observer interface {
	BlockAdded(b Block)
	TransactionAdded(tx Transaction)
	ChainReplaced(chain []Block)
}

// Option configures a Node.
type Option func(*Node)

// WithPublicKey sets the identity that receives mining rewards.
func WithPublicKey(key string) Option {
	return func(n *Node) { n.publicKey = key }
}

func WithStore(s Store) Option {
	return func(n *Node) { n.store = s }
}

func WithTransport(t Transport) Option {
	return func(n *Node) { n.transport = t }
}

func WithObserver(o Observer) Option {
	return func(n *Node) { n.observers = append(n.observers, o) }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// Node owns the chain, the open transaction pool and the peer set of one
// ledger participant. Every mutation is serialized by a single mutex; mining
// holds it for the whole proof search.
type Node struct {
	mutex     sync.Mutex
	id        string
	publicKey string
	chain     []Block
	open      []Transaction
	peers     map[string]struct{}
	conflict  bool
	state     ResolveState

	resolveMutex sync.Mutex
	resolveCh    chan struct{}

	verifier  Verifier
	transport Transport
	store     Store
	observers []Observer
	book      *PeerBook
	stats     *MiningStats
	logger    *slog.Logger
}

// NewNode creates the node identified by id. If a store is configured its
// snapshot for id is loaded; any load failure leaves the node at genesis with
// an empty pool and no peers.
func NewNode(id string, verifier Verifier, opts ...Option) *Node {
	n := &Node{
		id:        id,
		chain:     []Block{Genesis()},
		peers:     make(map[string]struct{}),
		resolveCh: make(chan struct{}, 1),
		verifier:  verifier,
		book:      NewPeerBook(),
		stats:     NewMiningStats(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.load()
	n.updateGauges()
	return n
}

func (n *Node) load() {
	if n.store == nil {
		return
	}
	snap, err := n.store.Load(n.id)
	if err != nil {
		if !errors.Is(err, ErrSnapshotNotFound) {
			n.logger.Warn("Failed to load snapshot, starting from genesis", "node", n.id, "error", err)
		}
		return
	}
	n.chain = snap.Chain
	n.open = snap.Open
	for _, p := range snap.Peers {
		n.peers[p] = struct{}{}
	}
	n.logger.Info("Loaded snapshot", "node", n.id, "height", len(n.chain)-1, "open", len(n.open), "peers", len(n.peers))
}

// save persists the current state. Failures are logged and counted only.
// Must be called with the mutex held.
func (n *Node) save() {
	if n.store == nil {
		return
	}
	snap := Snapshot{
		Chain: n.chain,
		Open:  n.open,
		Peers: n.sortedPeers(),
	}
	if err := n.store.Save(n.id, snap); err != nil {
		saveFailed.Add()
		n.logger.Error("Failed to save snapshot", "node", n.id, "error", err)
	}
}

func (n *Node) updateGauges() {
	chainHeight.Set(int64(len(n.chain) - 1))
	poolSize.Set(int64(len(n.open)))
}

// ID returns the node identity used as the persistence key.
func (n *Node) ID() string { return n.id }

// PublicKey returns the node's wallet identity, empty if it has none.
func (n *Node) PublicKey() string { return n.publicKey }

// Stats returns the node's mining statistics.
func (n *Node) Stats() MiningSummary { return n.stats.Summary() }

func (n *Node) Chain() []Block {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return cloneChain(n.chain)
}

func (n *Node) Head() Block {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.chain[len(n.chain)-1]
}

func (n *Node) OpenTransactions() []Transaction {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return append([]Transaction{}, n.open...)
}

// Balance returns the spendable funds of participant.
func (n *Node) Balance(participant string) Amount {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return Balance(n.chain, n.open, participant)
}

// OwnBalance returns the balance of the node's wallet.
func (n *Node) OwnBalance() (Amount, error) {
	if n.publicKey == "" {
		return 0, ErrNoWallet
	}
	return n.Balance(n.publicKey), nil
}

// SubmitTransaction admits a locally created transaction and forwards it to all peers.
func (n *Node) SubmitTransaction(ctx context.Context, tx Transaction) error {
	peers, err := n.admit(tx)
	if err != nil {
		return err
	}
	n.broadcast(peers, func(p string) error {
		return n.transport.PostTransaction(ctx, p, tx)
	})
	return nil
}

// ReceiveTransaction admits a transaction forwarded by a peer. It is not re-broadcast.
func (n *Node) ReceiveTransaction(tx Transaction) error {
	_, err := n.admit(tx)
	return err
}

func (n *Node) admit(tx Transaction) ([]string, error) {
	n.mutex.Lock()
	// Rewards are only ever created by Mine.
	if tx.IsReward() || tx.Sender == "" || tx.Recipient == "" {
		n.mutex.Unlock()
		txRejected.Add()
		return nil, fmt.Errorf("%w: sender %q", ErrInvalidTransaction, tx.Sender)
	}
	balance := func(p string) Amount { return Balance(n.chain, n.open, p) }
	if !VerifyTransaction(tx, balance, true, n.verifier) {
		n.mutex.Unlock()
		txRejected.Add()
		n.logger.Info("Rejected transaction", "sender", shortID(tx.Sender), "amount", tx.Amount)
		return nil, fmt.Errorf("%w: insufficient funds or bad signature", ErrInvalidTransaction)
	}
	n.open = append(n.open, tx)
	n.save()
	n.updateGauges()
	peers := n.sortedPeers()
	n.mutex.Unlock()

	txAccepted.Add()
	for _, o := range n.observers {
		o.TransactionAdded(tx)
	}
	return peers, nil
}

// Mine seals the open pool into a new block rewarding the node's wallet and
// broadcasts it. A peer declining the block marks a conflict.
func (n *Node) Mine(ctx context.Context) (Block, error) {
	n.mutex.Lock()
	if n.publicKey == "" {
		n.mutex.Unlock()
		return Block{}, ErrNoWallet
	}
	if n.conflict {
		n.mutex.Unlock()
		return Block{}, ErrConflictPending
	}
	head := n.chain[len(n.chain)-1]
	lastHash := HashBlock(head)
	txs := append([]Transaction{}, n.open...)

	start := time.Now()
	proof, err := ProofOfWork(ctx, txs, lastHash)
	if err != nil {
		n.mutex.Unlock()
		return Block{}, fmt.Errorf("proof of work aborted: %w", err)
	}
	n.stats.Record(proof, time.Since(start))

	if !VerifyTransactions(txs, n.verifier) {
		n.mutex.Unlock()
		return Block{}, fmt.Errorf("%w: open pool holds a bad signature", ErrInvalidTransaction)
	}
	block := NewBlock(head, append(txs, NewReward(n.publicKey)), proof)
	if err := n.checkVolume(block); err != nil {
		n.mutex.Unlock()
		return Block{}, err
	}
	n.chain = append(n.chain, block)
	n.open = nil
	n.save()
	n.updateGauges()
	peers := n.sortedPeers()
	n.mutex.Unlock()

	blocksMined.Add()
	n.logger.Info("Mined block", "index", block.Index, "proof", proof, "transactions", len(block.Transactions))
	for _, o := range n.observers {
		o.BlockAdded(block)
	}
	n.broadcast(peers, func(p string) error {
		err := n.transport.PostBlock(ctx, p, block)
		if errors.Is(err, ErrBlockDeclined) {
			n.markConflict()
		}
		return err
	})
	return block, nil
}

// AddBlock absorbs a block announced by a peer. Only the direct successor of
// the local head is accepted; a block further ahead, or one that does not link
// to the head, marks a conflict to be settled by ResolveConflicts.
func (n *Node) AddBlock(b Block) error {
	n.mutex.Lock()
	head := n.chain[len(n.chain)-1]
	var err error
	switch {
	case b.Index > head.Index+1:
		n.setConflict()
		err = fmt.Errorf("%w: got index %d, head is %d", ErrChainBehind, b.Index, head.Index)
	case b.Index <= head.Index:
		err = fmt.Errorf("%w: got index %d, head is %d", ErrStaleBlock, b.Index, head.Index)
	case b.PreviousHash != HashBlock(head):
		n.setConflict()
		err = fmt.Errorf("%w at index %d", ErrForkDetected, b.Index)
	case !ValidProof(b.Payload(), b.PreviousHash, b.Proof):
		err = fmt.Errorf("%w: bad proof at index %d", ErrInvalidBlock, b.Index)
	case !VerifyTransactions(b.Transactions, n.verifier):
		err = fmt.Errorf("%w: bad signature at index %d", ErrInvalidBlock, b.Index)
	default:
		err = n.checkVolume(b)
	}
	if err != nil {
		n.mutex.Unlock()
		blocksRejected.Add()
		n.logger.Info("Rejected block", "index", b.Index, "error", err)
		return err
	}

	n.chain = append(n.chain, b)
	n.open = pruneOpen(n.open, b.Transactions)
	n.save()
	n.updateGauges()
	n.mutex.Unlock()

	blocksAccepted.Add()
	for _, o := range n.observers {
		o.BlockAdded(b)
	}
	return nil
}

// checkVolume fails if appending b would let the chain's amounts add up past
// the range of an Amount. Must be called with the mutex held.
func (n *Node) checkVolume(b Block) error {
	total, err := Volume(n.chain)
	if err == nil {
		_, err = addVolume(total, b.Transactions)
	}
	if err != nil {
		return fmt.Errorf("%w at index %d: %w", ErrInvalidBlock, b.Index, err)
	}
	return nil
}

// pruneOpen drops pool entries confirmed by a block.
func pruneOpen(open, confirmed []Transaction) []Transaction {
	kept := open[:0:0]
	for _, tx := range open {
		found := false
		for _, c := range confirmed {
			if tx.Same(c) {
				found = true
				break
			}
		}
		if !found {
			kept = append(kept, tx)
		}
	}
	return kept
}

// ConflictPending reports whether a fork or a longer remote chain has been
// noticed and not yet resolved.
func (n *Node) ConflictPending() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.conflict
}

func (n *Node) State() ResolveState {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.state
}

// ResolveRequests delivers a value whenever a conflict is marked.
func (n *Node) ResolveRequests() <-chan struct{} {
	return n.resolveCh
}

func (n *Node) markConflict() {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.setConflict()
}

// setConflict must be called with the mutex held.
func (n *Node) setConflict() {
	n.conflict = true
	select {
	case n.resolveCh <- struct{}{}:
	default:
	}
}

// ResolveConflicts replaces the local chain with the longest valid chain held
// by a peer, if that chain is strictly longer. On replacement the open pool is
// dropped, not replayed. Unreachable peers are skipped. A pending conflict is
// cleared only when every peer was asked.
func (n *Node) ResolveConflicts(ctx context.Context) (bool, error) {
	if n.transport == nil {
		return false, errors.New("no transport configured")
	}
	n.resolveMutex.Lock()
	defer n.resolveMutex.Unlock()

	n.mutex.Lock()
	n.state = Resolving
	local := cloneChain(n.chain)
	peers := n.sortedPeers()
	n.mutex.Unlock()

	resolver := NewResolver(n.transport, n.verifier, n.book, n.logger)
	best, found := resolver.Best(ctx, local, peers)

	n.mutex.Lock()
	replaced := found && len(best) > len(n.chain)
	if replaced {
		n.chain = best
		n.open = nil
	}
	// An interrupted run may have skipped peers, so the conflict stays marked.
	if ctx.Err() == nil {
		n.conflict = false
	}
	n.state = Stable
	n.save()
	n.updateGauges()
	n.mutex.Unlock()

	if replaced {
		chainReplaced.Add()
		n.logger.Info("Replaced local chain", "length", len(best))
		for _, o := range n.observers {
			o.ChainReplaced(cloneChain(best))
		}
	}
	return replaced, ctx.Err()
}

// StoredNodes lists the node ids with a snapshot in the store.
func (n *Node) StoredNodes() ([]string, error) {
	if n.store == nil {
		return nil, nil
	}
	return n.store.NodeIDs()
}

// AddPeer adds addr to the peer set.
func (n *Node) AddPeer(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ErrInvalidPeer
	}
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.peers[addr] = struct{}{}
	n.save()
	return nil
}

// RemovePeer removes addr from the peer set.
func (n *Node) RemovePeer(addr string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.peers, addr)
	n.book.Forget(addr)
	n.save()
}

// Peers returns the peer set in sorted order.
func (n *Node) Peers() []string {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.sortedPeers()
}

// PeerStatus returns the reputation of every peer.
func (n *Node) PeerStatus() []PeerReputation {
	return n.book.Report(n.Peers())
}

func (n *Node) sortedPeers() []string {
	out := make([]string, 0, len(n.peers))
	for p := range n.peers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// broadcast calls send for every peer, skipping the ones that fail.
func (n *Node) broadcast(peers []string, send func(peer string) error) {
	if n.transport == nil {
		return
	}
	for _, p := range peers {
		err := send(p)
		n.book.Record(p, err)
		if err != nil {
			if errors.Is(err, ErrPeerUnreachable) {
				peersUnreachable.Add()
			}
			n.logger.Warn("Failed to reach peer", "peer", p, "error", err)
		}
	}
}

func shortID(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
