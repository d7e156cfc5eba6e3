package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Store persists node snapshots keyed by node id.
type Store interface {
	Load(nodeID string) (Snapshot, error)
	Save(nodeID string, s Snapshot) error
	NodeIDs() ([]string, error)
	Close() error
}

const snapshotKeyPrefix = "snapshot/"

// LevelStore keeps snapshots in LevelDB.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (or creates) the LevelDB database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Load(nodeID string) (Snapshot, error) {
	data, err := s.db.Get([]byte(snapshotKeyPrefix+nodeID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}

func (s *LevelStore) Save(nodeID string, snap Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.db.Put([]byte(snapshotKeyPrefix+nodeID), data, nil); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// NodeIDs lists the ids of all stored snapshots.
func (s *LevelStore) NodeIDs() ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(snapshotKeyPrefix)), nil)
	defer iter.Release()

	var ids []string
	for iter.Next() {
		ids = append(ids, strings.TrimPrefix(string(iter.Key()), snapshotKeyPrefix))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}
	return ids, nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
