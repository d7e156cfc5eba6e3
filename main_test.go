package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Artfain/powchain/core"
	"github.com/stretchr/testify/require"
)

func TestDefaultNodeID(t *testing.T) {
	require.Equal(t, "5000", defaultNodeID(":5000"))
	require.Equal(t, "8080", defaultNodeID("127.0.0.1:8080"))
	require.Equal(t, "node", defaultNodeID("node"))
}

func TestOpenStore(t *testing.T) {
	for _, kind := range []string{"leveldb", "bolt"} {
		t.Run(kind, func(t *testing.T) {
			s, err := openStore(kind, t.TempDir())
			require.NoError(t, err)
			require.NoError(t, s.Save("5000", core.Snapshot{Chain: []core.Block{core.Genesis()}}))
			require.NoError(t, s.Close())
		})
	}
	_, err := openStore("csv", t.TempDir())
	require.Error(t, err)
}

func TestOpenStoreListsNodes(t *testing.T) {
	dir := t.TempDir()
	s, err := openStore("leveldb", dir)
	require.NoError(t, err)
	require.NoError(t, s.Save("5000", core.Snapshot{Chain: []core.Block{core.Genesis()}}))
	require.NoError(t, s.Close())

	s, err = openStore("leveldb", dir)
	require.NoError(t, err)
	defer s.Close()
	ids, err := s.NodeIDs()
	require.NoError(t, err)
	require.Equal(t, []string{"5000"}, ids)
}

func TestAddPeers(t *testing.T) {
	node := core.NewNode("peers", core.VerifierFunc(func(core.Transaction) bool { return true }))
	addPeers(node, " localhost:5001, ,/ip4/127.0.0.1/tcp/4001,localhost:5001", slog.Default())
	require.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001", "localhost:5001"}, node.Peers())
}

func TestResolveLoopStopsOnCancel(t *testing.T) {
	node := core.NewNode("loop", core.VerifierFunc(func(core.Transaction) bool { return true }))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		resolveLoop(ctx, node, time.Hour, slog.Default())
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resolve loop did not stop")
	}
}
