// Command powchain runs a single ledger node: it mines, validates and relays
// blocks and transactions, and settles forks by adopting the longest valid
// chain among its peers.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Artfain/powchain/api"
	"github.com/Artfain/powchain/core"
	"github.com/Artfain/powchain/p2p"
	"github.com/Artfain/powchain/wallet"
	"github.com/kr/env"
	"github.com/kr/secureheader"
	"golang.org/x/time/rate"
)

var (
	listen          = env.String("LISTEN", ":5000")
	nodeID          = env.String("NODE_ID", "")
	dataDir         = env.String("DATA_DIR", ".")
	storeKind       = env.String("STORE", "leveldb")
	walletFile      = env.String("WALLET_FILE", "")
	peerList        = env.String("PEERS", "")
	resolveInterval = env.Duration("RESOLVE_INTERVAL", 30*time.Second)
	peerTimeout     = env.Duration("PEER_TIMEOUT", 10*time.Second)
	p2pListen       = env.String("P2P_LISTEN", "")
	rateLimit       = env.Int("RATE_LIMIT", 600)
	logLevel        = env.String("LOG_LEVEL", "info")
)

func main() {
	env.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	id := *nodeID
	if id == "" {
		id = defaultNodeID(*listen)
	}

	store, err := openStore(*storeKind, *dataDir)
	if err != nil {
		logger.Error("Failed to open store", "store", *storeKind, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	path := *walletFile
	if path == "" {
		path = filepath.Join(*dataDir, "wallet-"+id+".txt")
	}
	w, created, err := wallet.LoadOrCreate(path)
	if err != nil {
		logger.Error("Failed to load wallet", "path", path, "error", err)
		os.Exit(1)
	}
	if created {
		logger.Info("Created wallet", "path", path)
	}

	hub := api.NewHub(logger)
	router := &p2p.Router{HTTP: p2p.NewHTTPTransport(*peerTimeout)}
	node := core.NewNode(id, wallet.Verifier{},
		core.WithPublicKey(w.PublicKey),
		core.WithStore(store),
		core.WithTransport(router),
		core.WithObserver(hub),
		core.WithLogger(logger),
	)

	if *p2pListen != "" {
		host, err := p2p.NewHost(*p2pListen, node, logger)
		if err != nil {
			logger.Error("Failed to start libp2p host", "error", err)
			os.Exit(1)
		}
		defer host.Close()
		router.P2P = host
		logger.Info("libp2p host started", "addrs", host.Addrs())
	}

	addPeers(node, *peerList, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go resolveLoop(ctx, node, *resolveInterval, logger)

	var limiter *rate.Limiter
	if *rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(*rateLimit)), *rateLimit)
	}
	secureheader.DefaultConfig.PermitClearLoopback = true
	secureheader.DefaultConfig.HTTPSRedirect = false
	secureheader.DefaultConfig.Next = api.NewServer(node, w, hub, limiter, logger)

	srv := &http.Server{Addr: *listen, Handler: secureheader.DefaultConfig}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Node listening", "addr", *listen, "node", id, "publicKey", w.PublicKey, "height", node.Head().Index)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// defaultNodeID derives the node id from the port of the listen address.
func defaultNodeID(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i+1:]
	}
	return addr
}

func openStore(kind, dir string) (core.Store, error) {
	switch kind {
	case "bolt":
		return core.OpenBoltStore(filepath.Join(dir, "powchain.db"))
	case "leveldb":
		return core.OpenLevelStore(filepath.Join(dir, "powchain.ldb"))
	}
	return nil, errors.New("unknown store " + kind)
}

// addPeers adds every address of a comma separated list to node.
func addPeers(node *core.Node, list string, logger *slog.Logger) {
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if err := node.AddPeer(p); err != nil {
			logger.Warn("Ignoring peer", "peer", p, "error", err)
		}
	}
}

// resolveLoop settles conflicts when one is flagged and on every tick.
func resolveLoop(ctx context.Context, node *core.Node, interval time.Duration, logger *slog.Logger) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-node.ResolveRequests():
		case <-tick:
		}
		replaced, err := node.ResolveConflicts(ctx)
		if err != nil {
			logger.Warn("Conflict resolution incomplete", "error", err)
			continue
		}
		if replaced {
			logger.Info("Adopted longer chain from peer", "height", node.Head().Index)
		}
	}
}
