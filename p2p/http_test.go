package p2p_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Artfain/powchain/core"
	"github.com/Artfain/powchain/p2p"
	"github.com/stretchr/testify/require"
)

func newPeerServer(t *testing.T, blockStatus int) (*httptest.Server, *[]core.Transaction) {
	t.Helper()
	var received []core.Transaction
	mux := http.NewServeMux()
	mux.HandleFunc("GET /chain", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]core.Block{core.Genesis()})
	})
	mux.HandleFunc("POST /broadcast-transaction", func(w http.ResponseWriter, r *http.Request) {
		var tx core.Transaction
		if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received = append(received, tx)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /broadcast-block", func(w http.ResponseWriter, r *http.Request) {
		var env p2p.BlockEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(blockStatus)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &received
}

func TestHTTPTransport(t *testing.T) {
	srv, received := newPeerServer(t, http.StatusCreated)
	tr := p2p.NewHTTPTransport(time.Second)
	ctx := context.Background()

	chain, err := tr.FetchChain(ctx, srv.URL)
	require.NoError(t, err)
	require.Equal(t, []core.Block{core.Genesis()}, chain)

	tx := core.Transaction{Sender: "a", Recipient: "b", Amount: core.Coins(1), Signature: "s"}
	require.NoError(t, tr.PostTransaction(ctx, srv.URL, tx))
	require.Equal(t, []core.Transaction{tx}, *received)

	require.NoError(t, tr.PostBlock(ctx, srv.URL, core.Genesis()))
}

func TestHTTPTransportHostPort(t *testing.T) {
	srv, _ := newPeerServer(t, http.StatusCreated)
	tr := p2p.NewHTTPTransport(time.Second)

	chain, err := tr.FetchChain(context.Background(), srv.Listener.Addr().String())
	require.NoError(t, err)
	require.Len(t, chain, 1)
}

func TestHTTPTransportDeclined(t *testing.T) {
	srv, _ := newPeerServer(t, http.StatusConflict)
	tr := p2p.NewHTTPTransport(time.Second)
	err := tr.PostBlock(context.Background(), srv.URL, core.Genesis())
	require.ErrorIs(t, err, core.ErrBlockDeclined)
}

func TestHTTPTransportUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	tr := p2p.NewHTTPTransport(time.Second)
	_, err := tr.FetchChain(context.Background(), addr)
	require.ErrorIs(t, err, core.ErrPeerUnreachable)
	err = tr.PostBlock(context.Background(), addr, core.Genesis())
	require.ErrorIs(t, err, core.ErrPeerUnreachable)
}

func TestRouter(t *testing.T) {
	srv, _ := newPeerServer(t, http.StatusCreated)
	r := &p2p.Router{HTTP: p2p.NewHTTPTransport(time.Second)}

	_, err := r.FetchChain(context.Background(), srv.URL)
	require.NoError(t, err)

	_, err = r.FetchChain(context.Background(), "/ip4/127.0.0.1/tcp/1/p2p/QmYyQSo1c1Ym7orWxLYvCrM2EmxFTANf8wXmmE7DWjhx5N")
	require.ErrorIs(t, err, core.ErrPeerUnreachable)
}
