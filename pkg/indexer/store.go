package indexer

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/cowbatch/settlement/pkg/domain"
)

// PebbleCursor persists the last fully-processed block number so the
// indexer doesn't reprocess the chain from genesis on restart,
// grounded on the teacher's storage.PebbleStore key-space convention
// (a fixed string key for singleton state, as its "cm"/committed key
// does for consensus height).
type PebbleCursor struct {
	db *pebble.DB
}

var cursorKey = []byte("indexer/cursor")

func NewPebbleCursor(db *pebble.DB) *PebbleCursor { return &PebbleCursor{db: db} }

func (c *PebbleCursor) LastBlock() (uint64, error) {
	data, closer, err := c.db.Get(cursorKey)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("indexer: read cursor: %w", err)
	}
	defer closer.Close()
	if len(data) != 8 {
		return 0, fmt.Errorf("indexer: corrupt cursor record")
	}
	return binary.BigEndian.Uint64(data), nil
}

func (c *PebbleCursor) SaveLastBlock(block uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], block)
	return c.db.Set(cursorKey, buf[:], pebble.Sync)
}

// PebbleFilledRegister is the durable FilledAmount register the
// indexer mutates from confirmed chain events (§5 "updated only after
// on-chain confirmation, never from simulation"), backed by the same
// pebble key-space convention as pkg/solvers.PebbleStore.
type PebbleFilledRegister struct {
	mu sync.Mutex
	db *pebble.DB
}

func NewPebbleFilledRegister(db *pebble.DB) *PebbleFilledRegister {
	return &PebbleFilledRegister{db: db}
}

func filledKey(uid domain.OrderUID) []byte {
	return append([]byte("filled/"), uid[:]...)
}

func (r *PebbleFilledRegister) Get(uid domain.OrderUID) (*big.Int, error) {
	data, closer, err := r.db.Get(filledKey(uid))
	if err == pebble.ErrNotFound {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("indexer: read filled amount for %s: %w", uid.Hex(), err)
	}
	defer closer.Close()
	return new(big.Int).SetBytes(data), nil
}

func (r *PebbleFilledRegister) Add(uid domain.OrderUID, delta *big.Int) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.Get(uid)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Add(cur, delta)
	if next.Cmp(cur) < 0 {
		return nil, fmt.Errorf("indexer: filled amount for %s would decrease", uid.Hex())
	}
	if err := r.db.Set(filledKey(uid), next.Bytes(), pebble.Sync); err != nil {
		return nil, fmt.Errorf("indexer: persist filled amount for %s: %w", uid.Hex(), err)
	}
	return next, nil
}

func (r *PebbleFilledRegister) Invalidate(uid domain.OrderUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Set(filledKey(uid), domain.MaxFilled.Bytes(), pebble.Sync)
}

// DriverFilledSource adapts PebbleFilledRegister's synchronous Get into
// pkg/driver's FilledSource interface, which carries a context and
// block pin that the indexer's own single-writer register doesn't need
// internally (its reads are always "whatever was last confirmed").
type DriverFilledSource struct {
	reg *PebbleFilledRegister
}

func NewDriverFilledSource(reg *PebbleFilledRegister) DriverFilledSource {
	return DriverFilledSource{reg: reg}
}

func (s DriverFilledSource) Filled(_ context.Context, _ uint64, uid domain.OrderUID) (*big.Int, error) {
	return s.reg.Get(uid)
}
