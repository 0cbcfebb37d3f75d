package solvers

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// PebbleStore is the durable nonce store, one key per solver address
// (grounded on the teacher's account.Store key-space/Set/Get
// convention in pkg/app/core/account/store.go).
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dbPath string) (*PebbleStore, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("solvers: open pebble db at %s: %w", dbPath, err)
	}
	return &PebbleStore{db: db}, nil
}

// NewPebbleStoreFromDB wraps an already-opened pebble database,
// letting the nonce store share one process-wide db with the
// indexer's cursor and FilledAmount register under distinct key
// prefixes, rather than each opening (and locking) its own file.
func NewPebbleStoreFromDB(db *pebble.DB) *PebbleStore {
	return &PebbleStore{db: db}
}

// Close closes the underlying database. Only call this on a store
// built with NewPebbleStore, which owns it; a store built with
// NewPebbleStoreFromDB shares a db its caller owns and closes.
func (s *PebbleStore) Close() error { return s.db.Close() }

func nonceKey(addr common.Address) []byte {
	return append([]byte("solver/nonce/"), addr.Bytes()...)
}

func (s *PebbleStore) SaveNonce(addr common.Address, nonce uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return s.db.Set(nonceKey(addr), buf[:], pebble.Sync)
}

func (s *PebbleStore) LoadNonce(addr common.Address) (uint64, bool, error) {
	data, closer, err := s.db.Get(nonceKey(addr))
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("solvers: get nonce for %s: %w", addr.Hex(), err)
	}
	defer closer.Close()

	if len(data) != 8 {
		return 0, false, fmt.Errorf("solvers: corrupt nonce record for %s", addr.Hex())
	}
	return binary.BigEndian.Uint64(data), true, nil
}
