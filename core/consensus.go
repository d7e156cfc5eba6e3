package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrPeerUnreachable wraps transport failures to reach a peer.
	ErrPeerUnreachable = errors.New("peer unreachable")
	// ErrBlockDeclined is returned when a peer refuses a block we posted.
	ErrBlockDeclined = errors.New("block declined by peer")
)

// Transport talks to other nodes. Implementations live in the p2p package.
type Transport interface {
	FetchChain(ctx context.Context, peer string) ([]Block, error)
	PostTransaction(ctx context.Context, peer string, tx Transaction) error
	PostBlock(ctx context.Context, peer string, b Block) error
}

// ResolveState is the conflict resolution state of a node.
type ResolveState int

const (
	Stable ResolveState = iota
	Resolving
)

func (s ResolveState) String() string {
	if s == Resolving {
		return "resolving"
	}
	return "stable"
}

// Resolver picks the longest valid chain among a set of peers. A peer chain
// is valid when its linkage, proofs and transaction signatures all check out.
type Resolver struct {
	transport Transport
	verifier  Verifier
	book      *PeerBook
	logger    *slog.Logger
}

func NewResolver(t Transport, v Verifier, book *PeerBook, logger *slog.Logger) *Resolver {
	if book == nil {
		book = NewPeerBook()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{transport: t, verifier: v, book: book, logger: logger}
}

// Best queries every peer and returns the longest valid chain seen, starting
// from local. replaced is true when a peer chain beat local. Peers that fail
// to answer or answer with garbage are skipped.
func (r *Resolver) Best(ctx context.Context, local []Block, peers []string) (best []Block, replaced bool) {
	best = local
	for _, p := range peers {
		if ctx.Err() != nil {
			break
		}
		chain, err := r.transport.FetchChain(ctx, p)
		if err == nil {
			err = CheckStructure(chain)
		}
		if err == nil && len(chain) > len(best) {
			err = r.validate(chain)
		}
		r.book.Record(p, err)
		if err != nil {
			if errors.Is(err, ErrPeerUnreachable) {
				peersUnreachable.Add()
			}
			r.logger.Warn("Skipping peer during resolution", "peer", p, "error", err)
			continue
		}
		if len(chain) > len(best) {
			r.logger.Info("Found longer valid chain", "peer", p, "length", len(chain))
			best = chain
			replaced = true
		}
	}
	return best, replaced
}

func (r *Resolver) validate(chain []Block) error {
	if !VerifyChain(chain) {
		return fmt.Errorf("%w: broken linkage or proof", ErrInvalidBlock)
	}
	if !VerifyChainTransactions(chain, r.verifier) {
		return fmt.Errorf("%w: bad signature", ErrInvalidBlock)
	}
	return nil
}
