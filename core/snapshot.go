package core

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"
)

// SnapshotVersion is the layout version written by this package.
const SnapshotVersion = 1

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrSnapshotVersion  = errors.New("unsupported snapshot version")
)

var cborHandle = &codec.CborHandle{}

// Snapshot is the persisted state of a node.
type Snapshot struct {
	Version int           `codec:"version"`
	Chain   []Block       `codec:"chain"`
	Open    []Transaction `codec:"open"`
	Peers   []string      `codec:"peers"`
}

// EncodeSnapshot serializes s as CBOR, stamping the current version.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	s.Version = SnapshotVersion
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, cborHandle).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot parses data written by EncodeSnapshot. Snapshots of another
// version, with a structurally broken chain or with a negative pool amount
// are rejected.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := codec.NewDecoderBytes(data, cborHandle).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrSnapshotVersion, s.Version)
	}
	if err := CheckStructure(s.Chain); err != nil {
		return Snapshot{}, err
	}
	if _, err := addVolume(0, s.Open); err != nil {
		return Snapshot{}, fmt.Errorf("open pool: %w", err)
	}
	return s, nil
}
