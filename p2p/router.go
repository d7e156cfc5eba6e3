package p2p

import (
	"context"
	"fmt"
	"strings"

	"github.com/Artfain/powchain/core"
)

// Router sends requests for multiaddr peers (leading "/") over libp2p and
// everything else over HTTP.
type Router struct {
	HTTP core.Transport
	P2P  core.Transport
}

func (r *Router) pick(peer string) (core.Transport, error) {
	if strings.HasPrefix(peer, "/") {
		if r.P2P == nil {
			return nil, fmt.Errorf("%w: libp2p is disabled, cannot reach %s", core.ErrPeerUnreachable, peer)
		}
		return r.P2P, nil
	}
	if r.HTTP == nil {
		return nil, fmt.Errorf("%w: http is disabled, cannot reach %s", core.ErrPeerUnreachable, peer)
	}
	return r.HTTP, nil
}

func (r *Router) FetchChain(ctx context.Context, peer string) ([]core.Block, error) {
	t, err := r.pick(peer)
	if err != nil {
		return nil, err
	}
	return t.FetchChain(ctx, peer)
}

func (r *Router) PostTransaction(ctx context.Context, peer string, tx core.Transaction) error {
	t, err := r.pick(peer)
	if err != nil {
		return err
	}
	return t.PostTransaction(ctx, peer, tx)
}

func (r *Router) PostBlock(ctx context.Context, peer string, b core.Block) error {
	t, err := r.pick(peer)
	if err != nil {
		return err
	}
	return t.PostBlock(ctx, peer, b)
}
