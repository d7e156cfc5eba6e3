package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Artfain/powchain/core"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
)

// ProtocolID identifies the ledger stream protocol.
const ProtocolID = protocol.ID("/powchain/1.0.0")

// Message types carried on a stream.
const (
	MsgGetChain    = "get_chain"
	MsgTransaction = "transaction"
	MsgBlock       = "block"
)

// Message is a single request sent on a fresh stream.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Reply answers a Message. Status follows HTTP status codes.
type Reply struct {
	Status int             `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Handler serves requests arriving from peers. *core.Node implements it.
type Handler interface {
	Chain() []core.Block
	ReceiveTransaction(tx core.Transaction) error
	AddBlock(b core.Block) error
}

// Host is a libp2p transport. Peers are addressed by multiaddrs ending in /p2p/<id>.
type Host struct {
	host    host.Host
	handler Handler
	logger  *slog.Logger
}

// NewHost starts a libp2p host listening on listen and serving handler.
func NewHost(listen string, handler Handler, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h, err := libp2p.New(libp2p.ListenAddrStrings(listen))
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}
	p := &Host{
		host:    h,
		handler: handler,
		logger:  logger,
	}
	h.SetStreamHandler(ProtocolID, p.handleStream)
	return p, nil
}

// Addrs returns the dialable addresses of the host including its peer id.
func (p *Host) Addrs() []string {
	suffix, err := ma.NewMultiaddr("/p2p/" + p.host.ID().String())
	if err != nil {
		return nil
	}
	var out []string
	for _, a := range p.host.Addrs() {
		out = append(out, a.Encapsulate(suffix).String())
	}
	return out
}

func (p *Host) Close() error {
	return p.host.Close()
}

func (p *Host) FetchChain(ctx context.Context, addr string) ([]core.Block, error) {
	reply, err := p.request(ctx, addr, Message{Type: MsgGetChain})
	if err != nil {
		return nil, err
	}
	if reply.Status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s: %s", reply.Status, addr, reply.Error)
	}
	var chain []core.Block
	if err := json.Unmarshal(reply.Data, &chain); err != nil {
		return nil, fmt.Errorf("failed to decode chain from %s: %w", addr, err)
	}
	return chain, nil
}

func (p *Host) PostTransaction(ctx context.Context, addr string, tx core.Transaction) error {
	data, _ := json.Marshal(tx)
	reply, err := p.request(ctx, addr, Message{Type: MsgTransaction, Data: data})
	if err != nil {
		return err
	}
	if reply.Status != http.StatusCreated {
		return fmt.Errorf("peer %s rejected transaction: %s", addr, reply.Error)
	}
	return nil
}

func (p *Host) PostBlock(ctx context.Context, addr string, b core.Block) error {
	data, _ := json.Marshal(b)
	reply, err := p.request(ctx, addr, Message{Type: MsgBlock, Data: data})
	if err != nil {
		return err
	}
	switch reply.Status {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%w: %s: %s", core.ErrBlockDeclined, addr, reply.Error)
	default:
		return fmt.Errorf("peer %s rejected block: %s", addr, reply.Error)
	}
}

func (p *Host) request(ctx context.Context, addr string, msg Message) (Reply, error) {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to parse peer address: %w", err)
	}
	if err := p.host.Connect(ctx, *info); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", core.ErrPeerUnreachable, err)
	}
	stream, err := p.host.NewStream(ctx, info.ID, ProtocolID)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", core.ErrPeerUnreachable, err)
	}
	defer stream.Close()
	if deadline, ok := ctx.Deadline(); ok {
		stream.SetDeadline(deadline)
	}

	if err := json.NewEncoder(stream).Encode(msg); err != nil {
		stream.Reset()
		return Reply{}, fmt.Errorf("%w: %v", core.ErrPeerUnreachable, err)
	}
	stream.CloseWrite()

	var reply Reply
	if err := json.NewDecoder(io.LimitReader(stream, maxBodySize)).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("failed to read reply from %s: %w", addr, err)
	}
	return reply, nil
}

// handleStream handles incoming streams from peers.
func (p *Host) handleStream(stream network.Stream) {
	defer stream.Close()
	remote := stream.Conn().RemotePeer().String()

	var msg Message
	if err := json.NewDecoder(io.LimitReader(stream, maxBodySize)).Decode(&msg); err != nil {
		p.logger.Error("Failed to read message from stream", "peer", remote, "error", err)
		stream.Reset()
		return
	}
	reply := p.dispatch(msg)
	if err := json.NewEncoder(stream).Encode(reply); err != nil {
		p.logger.Error("Failed to write reply to stream", "peer", remote, "error", err)
	}
}

func (p *Host) dispatch(msg Message) Reply {
	switch msg.Type {
	case MsgGetChain:
		data, err := json.Marshal(p.handler.Chain())
		if err != nil {
			return Reply{Status: http.StatusInternalServerError, Error: err.Error()}
		}
		return Reply{Status: http.StatusOK, Data: data}

	case MsgTransaction:
		var tx core.Transaction
		if err := json.Unmarshal(msg.Data, &tx); err != nil {
			return Reply{Status: http.StatusBadRequest, Error: err.Error()}
		}
		if err := p.handler.ReceiveTransaction(tx); err != nil {
			return Reply{Status: http.StatusBadRequest, Error: err.Error()}
		}
		return Reply{Status: http.StatusCreated}

	case MsgBlock:
		var b core.Block
		if err := json.Unmarshal(msg.Data, &b); err != nil {
			return Reply{Status: http.StatusBadRequest, Error: err.Error()}
		}
		err := p.handler.AddBlock(b)
		reply := Reply{Status: BlockStatus(err)}
		if err != nil {
			reply.Error = err.Error()
		}
		return reply
	}
	return Reply{Status: http.StatusBadRequest, Error: "unknown message type " + msg.Type}
}

// BlockStatus maps the outcome of absorbing an announced block to a status code:
// 201 accepted, 200 behind (resolution scheduled), 409 refused.
func BlockStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusCreated
	case errors.Is(err, core.ErrChainBehind):
		return http.StatusOK
	default:
		return http.StatusConflict
	}
}
