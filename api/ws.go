package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Artfain/powchain/core"
	"github.com/gorilla/websocket"
)

// Event and request types carried over the websocket.
const (
	EventBlock         = "block"
	EventTransaction   = "transaction"
	EventChainReplaced = "chain_replaced"
	EventChain         = "chain"
	EventBalance       = "balance"
	EventTransactions  = "transactions"
	EventError         = "error"

	RequestChain        = "get_chain"
	RequestBalance      = "get_balance"
	RequestTransactions = "get_transactions"
)

const (
	pingPeriod   = 30 * time.Second
	readTimeout  = 180 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

// Message represents a WebSocket message.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newMessage(typ string, v any) Message {
	data, _ := json.Marshal(v)
	return Message{Type: typ, Data: data}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub fans ledger events out to websocket clients. It implements core.Observer.
// Clients that cannot keep up are dropped.
type Hub struct {
	mutex   sync.Mutex
	clients map[*client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan Message, sendBuffer)}
	h.mutex.Lock()
	h.clients[c] = struct{}{}
	h.mutex.Unlock()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// reply queues msg for a single client.
func (h *Hub) reply(c *client, msg Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(msg Message) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

func (h *Hub) BlockAdded(b core.Block) {
	h.broadcast(newMessage(EventBlock, b))
}

func (h *Hub) TransactionAdded(tx core.Transaction) {
	h.broadcast(newMessage(EventTransaction, tx))
}

func (h *Hub) ChainReplaced(chain []core.Block) {
	h.broadcast(newMessage(EventChainReplaced, chain))
}

// writePump owns all writes to the connection.
func (h *Hub) writePump(c *client) {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Error("Error writing websocket message", "error", err)
				return
			}
		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Error("Error sending ping", "error", err)
				return
			}
		}
	}
}

// HandleWebSocket upgrades the request and serves ledger queries until the client leaves.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}
	c := s.hub.register(conn)
	defer s.hub.unregister(c)
	go s.hub.writePump(c)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("WebSocket closed by client")
			} else {
				s.logger.Debug("Error reading websocket message", "error", err)
			}
			return
		}

		switch msg.Type {
		case RequestChain:
			s.hub.reply(c, newMessage(EventChain, s.node.Chain()))

		case RequestTransactions:
			s.hub.reply(c, newMessage(EventTransactions, s.node.OpenTransactions()))

		case RequestBalance:
			var data struct {
				Participant string `json:"participant"`
			}
			if err := json.Unmarshal(msg.Data, &data); err != nil || data.Participant == "" {
				s.hub.reply(c, newMessage(EventError, messageBody{Message: "invalid data"}))
				continue
			}
			s.hub.reply(c, newMessage(EventBalance, balanceBody{
				Participant: data.Participant,
				Funds:       s.node.Balance(data.Participant),
			}))

		default:
			s.hub.reply(c, newMessage(EventError, messageBody{Message: "unknown type " + msg.Type}))
		}
	}
}
