// Package api exposes a node over HTTP: JSON endpoints for clients and peers
// and a websocket event stream.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/Artfain/powchain/core"
	"github.com/Artfain/powchain/p2p"
	"github.com/Artfain/powchain/wallet"
	"github.com/codahale/metrics"
	"golang.org/x/time/rate"
)

// maxRequestSize bounds request bodies.
const maxRequestSize = 64 << 20

type messageBody struct {
	Message string `json:"message"`
}

type balanceBody struct {
	Participant string      `json:"participant"`
	Funds       core.Amount `json:"funds"`
}

// Server serves the REST and websocket API of one node.
type Server struct {
	node    *core.Node
	wallet  *wallet.Wallet
	hub     *Hub
	limiter *rate.Limiter
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer builds the API. w may be nil for a node without a wallet, and
// limiter may be nil to disable rate limiting.
func NewServer(node *core.Node, w *wallet.Wallet, hub *Hub, limiter *rate.Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	s := &Server{
		node:    node,
		wallet:  w,
		hub:     hub,
		limiter: limiter,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /chain", s.getChain)
	s.mux.HandleFunc("GET /transactions", s.getTransactions)
	s.mux.HandleFunc("POST /transaction", s.postTransaction)
	s.mux.HandleFunc("POST /broadcast-transaction", s.broadcastTransaction)
	s.mux.HandleFunc("POST /broadcast-block", s.broadcastBlock)
	s.mux.HandleFunc("POST /mine", s.mine)
	s.mux.HandleFunc("GET /balance", s.ownBalance)
	s.mux.HandleFunc("GET /balance/{participant}", s.balance)
	s.mux.HandleFunc("POST /node", s.addNode)
	s.mux.HandleFunc("DELETE /node/{node...}", s.removeNode)
	s.mux.HandleFunc("GET /nodes", s.getNodes)
	s.mux.HandleFunc("POST /resolve-conflicts", s.resolveConflicts)
	s.mux.HandleFunc("GET /stats", s.stats)
	s.mux.HandleFunc("GET /ws", s.HandleWebSocket)
	return s
}

// ServeHTTP applies rate limiting and request counters before routing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		metrics.Counter("respcode.429").Add()
		writeJSON(w, http.StatusTooManyRequests, messageBody{Message: "Rate limit exceeded"})
		return
	}
	metrics.Counter("requests").Add()
	s.mux.ServeHTTP(&codeCountResponse{ResponseWriter: w}, r)
}

// codeCountResponse counts response codes.
type codeCountResponse struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *codeCountResponse) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	metrics.Counter("respcode." + strconv.Itoa(code)).Add()
	w.ResponseWriter.WriteHeader(code)
}

func (w *codeCountResponse) Write(p []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.ResponseWriter.Write(p)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *codeCountResponse) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.wroteHeader = true
	metrics.Counter("respcode.101").Add()
	return h.Hijack()
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, messageBody{Message: msg})
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestSize)).Decode(v)
}

func (s *Server) getChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Chain())
}

func (s *Server) getTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.OpenTransactions())
}

func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	if s.wallet == nil {
		writeMessage(w, http.StatusBadRequest, "No wallet set up.")
		return
	}
	var req struct {
		Recipient string       `json:"recipient"`
		Amount    *core.Amount `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if req.Recipient == "" || req.Amount == nil {
		writeMessage(w, http.StatusBadRequest, "Required data is missing.")
		return
	}
	tx, err := s.wallet.NewTransaction(req.Recipient, *req.Amount)
	if err != nil {
		s.logger.Error("Failed to sign transaction", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Signing the transaction failed.")
		return
	}
	if err := s.node.SubmitTransaction(r.Context(), tx); err != nil {
		writeMessage(w, http.StatusBadRequest, "Creating a transaction failed: "+err.Error())
		return
	}
	funds, _ := s.node.OwnBalance()
	writeJSON(w, http.StatusCreated, struct {
		Message     string           `json:"message"`
		Transaction core.Transaction `json:"transaction"`
		Funds       core.Amount      `json:"funds"`
	}{"Successfully added transaction.", tx, funds})
}

func (s *Server) broadcastTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender    string       `json:"sender"`
		Recipient string       `json:"recipient"`
		Amount    *core.Amount `json:"amount"`
		Signature string       `json:"signature"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if req.Sender == "" || req.Recipient == "" || req.Amount == nil || req.Signature == "" {
		writeMessage(w, http.StatusBadRequest, "Required data is missing.")
		return
	}
	tx := core.Transaction{Sender: req.Sender, Recipient: req.Recipient, Amount: *req.Amount, Signature: req.Signature}
	if err := s.node.ReceiveTransaction(tx); err != nil {
		writeMessage(w, http.StatusBadRequest, "Creating a transaction failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Message     string           `json:"message"`
		Transaction core.Transaction `json:"transaction"`
	}{"Successfully added transaction.", tx})
}

func (s *Server) broadcastBlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Block *core.Block `json:"block"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if req.Block == nil {
		writeMessage(w, http.StatusBadRequest, "Required data is missing.")
		return
	}
	err := s.node.AddBlock(*req.Block)
	code := p2p.BlockStatus(err)
	switch code {
	case http.StatusCreated:
		writeMessage(w, code, "Block added")
	case http.StatusOK:
		writeMessage(w, code, "Blockchain seems to differ from local blockchain.")
	default:
		writeMessage(w, code, "Block seems invalid: "+err.Error())
	}
}

func (s *Server) mine(w http.ResponseWriter, r *http.Request) {
	block, err := s.node.Mine(r.Context())
	switch {
	case errors.Is(err, core.ErrConflictPending):
		writeMessage(w, http.StatusConflict, "Resolve conflicts first, block not added!")
		return
	case err != nil:
		s.logger.Error("Mining failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Adding a block failed: "+err.Error())
		return
	}
	funds, _ := s.node.OwnBalance()
	writeJSON(w, http.StatusCreated, struct {
		Message string      `json:"message"`
		Block   core.Block  `json:"block"`
		Funds   core.Amount `json:"funds"`
	}{"Block added successfully.", block, funds})
}

func (s *Server) ownBalance(w http.ResponseWriter, r *http.Request) {
	funds, err := s.node.OwnBalance()
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Loading balance failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, balanceBody{Participant: s.node.PublicKey(), Funds: funds})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	p := r.PathValue("participant")
	writeJSON(w, http.StatusOK, balanceBody{Participant: p, Funds: s.node.Balance(p)})
}

func (s *Server) addNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Node string `json:"node"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if err := s.node.AddPeer(req.Node); err != nil {
		writeMessage(w, http.StatusBadRequest, "No node data found.")
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		Message  string   `json:"message"`
		AllNodes []string `json:"all_nodes"`
	}{"Node added successfully.", s.node.Peers()})
}

func (s *Server) removeNode(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("node")
	if addr == "" {
		writeMessage(w, http.StatusBadRequest, "No node found.")
		return
	}
	s.node.RemovePeer(addr)
	writeJSON(w, http.StatusOK, struct {
		Message  string   `json:"message"`
		AllNodes []string `json:"all_nodes"`
	}{"Node removed.", s.node.Peers()})
}

func (s *Server) getNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		AllNodes []string              `json:"all_nodes"`
		Status   []core.PeerReputation `json:"status"`
	}{s.node.Peers(), s.node.PeerStatus()})
}

func (s *Server) resolveConflicts(w http.ResponseWriter, r *http.Request) {
	replaced, err := s.node.ResolveConflicts(r.Context())
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Resolving conflicts failed: "+err.Error())
		return
	}
	msg := "Local chain kept!"
	if replaced {
		msg = "Chain was replaced!"
	}
	writeJSON(w, http.StatusOK, struct {
		Replaced bool   `json:"replaced"`
		Message  string `json:"message"`
	}{replaced, msg})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stored, err := s.node.StoredNodes()
	if err != nil {
		s.logger.Warn("Failed to list stored snapshots", "error", err)
	}
	counters, gauges := metrics.Snapshot()
	writeJSON(w, http.StatusOK, struct {
		Height      int                `json:"height"`
		State       string             `json:"state"`
		Conflict    bool               `json:"conflict"`
		Mining      core.MiningSummary `json:"mining"`
		Clients     int                `json:"clients"`
		StoredNodes []string           `json:"storedNodes"`
		Counters    map[string]uint64  `json:"counters"`
		Gauges      map[string]int64   `json:"gauges"`
	}{
		Height:      s.node.Head().Index,
		State:       s.node.State().String(),
		Conflict:    s.node.ConflictPending(),
		Mining:      s.node.Stats(),
		Clients:     s.hub.Clients(),
		StoredNodes: stored,
		Counters:    counters,
		Gauges:      gauges,
	})
}
