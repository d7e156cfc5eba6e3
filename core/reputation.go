package core

import (
	"math"
	"sort"
	"sync"
	"time"
)

// PeerReputation summarizes how a peer has answered our requests.
type PeerReputation struct {
	Address     string    `json:"address"`
	Score       float64   `json:"score"`
	Successes   uint64    `json:"successes"`
	Failures    uint64    `json:"failures"`
	LastError   string    `json:"lastError,omitempty"`
	LastContact time.Time `json:"lastContact,omitempty"`
}

// NewPeerReputation initializes a reputation with the default score.
func NewPeerReputation(addr string) *PeerReputation {
	return &PeerReputation{Address: addr, Score: 1.0}
}

// UpdateReputation records one exchange with the peer. err is nil for a
// successful exchange.
func UpdateReputation(rep *PeerReputation, err error, now time.Time) *PeerReputation {
	rep.LastContact = now
	if err != nil {
		rep.Failures++
		rep.LastError = err.Error()
		rep.Score = math.Max(0.1, rep.Score*0.9)
	} else {
		rep.Successes++
		rep.LastError = ""
		rep.Score = math.Min(2.0, rep.Score+0.01*math.Log1p(float64(rep.Successes)))
	}
	return rep
}

// PeerBook tracks reputations for known peers. It only observes; nothing
// skips a peer because of its score.
type PeerBook struct {
	mutex sync.Mutex
	peers map[string]*PeerReputation
	now   func() time.Time
}

func NewPeerBook() *PeerBook {
	return &PeerBook{
		peers: make(map[string]*PeerReputation),
		now:   time.Now,
	}
}

// Record updates the reputation of addr with the outcome of one exchange.
func (b *PeerBook) Record(addr string, err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	rep, ok := b.peers[addr]
	if !ok {
		rep = NewPeerReputation(addr)
		b.peers[addr] = rep
	}
	UpdateReputation(rep, err, b.now())
}

// Forget drops addr from the book.
func (b *PeerBook) Forget(addr string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.peers, addr)
}

// Get returns the reputation of addr, or a fresh one if it was never contacted.
func (b *PeerBook) Get(addr string) PeerReputation {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if rep, ok := b.peers[addr]; ok {
		return *rep
	}
	return *NewPeerReputation(addr)
}

// Report returns reputations for addrs, sorted by address.
func (b *PeerBook) Report(addrs []string) []PeerReputation {
	out := make([]PeerReputation, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, b.Get(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
