package p2p

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Artfain/powchain/core"
)

// maxBodySize bounds responses and stream messages read from peers.
const maxBodySize = 64 << 20

// HTTPTransport reaches peers through their REST endpoints.
// Peers are host:port pairs or base URLs.
type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

func peerURL(peer, path string) string {
	if strings.HasPrefix(peer, "http://") || strings.HasPrefix(peer, "https://") {
		return strings.TrimRight(peer, "/") + path
	}
	return "http://" + peer + path
}

func (t *HTTPTransport) FetchChain(ctx context.Context, peer string) ([]core.Block, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peerURL(peer, "/chain"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPeerUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, peer)
	}
	var chain []core.Block
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&chain); err != nil {
		return nil, fmt.Errorf("failed to decode chain from %s: %w", peer, err)
	}
	return chain, nil
}

func (t *HTTPTransport) PostTransaction(ctx context.Context, peer string, tx core.Transaction) error {
	status, err := t.post(ctx, peerURL(peer, "/broadcast-transaction"), tx)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("peer %s rejected transaction with status %d", peer, status)
	}
	return nil
}

func (t *HTTPTransport) PostBlock(ctx context.Context, peer string, b core.Block) error {
	status, err := t.post(ctx, peerURL(peer, "/broadcast-block"), BlockEnvelope{Block: b})
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", core.ErrBlockDeclined, peer)
	default:
		return fmt.Errorf("peer %s rejected block with status %d", peer, status)
	}
}

func (t *HTTPTransport) post(ctx context.Context, url string, body any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrPeerUnreachable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	return resp.StatusCode, nil
}

// BlockEnvelope is the body of a block announcement.
type BlockEnvelope struct {
	Block core.Block `json:"block"`
}
