package indexer

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/domain"
)

type memCursor struct{ block uint64 }

func (c *memCursor) LastBlock() (uint64, error)     { return c.block, nil }
func (c *memCursor) SaveLastBlock(b uint64) error { c.block = b; return nil }

type fakeLogSource struct {
	log Log
}

func (f *fakeLogSource) FetchLogs(context.Context, uint64, uint64) (Log, error) { return f.log, nil }

type fakeObserver struct {
	observed []uint64
}

func (f *fakeObserver) SettlementObserved(auctionID uint64, _ common.Address) {
	f.observed = append(f.observed, auctionID)
}

func TestIndexer_AppliesTradeToFilledRegister(t *testing.T) {
	var uid domain.OrderUID
	uid[0] = 7

	logs := &fakeLogSource{log: Log{
		Trades: []TradeEvent{{OrderUID: uid, SellAmount: big.NewInt(500), Block: 10}},
	}}
	filled := domain.NewInMemoryFilledRegister()
	cursor := &memCursor{}

	idx := New(logs, filled, cursor, nil, nil, nil)
	if err := idx.Advance(context.Background(), 10); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	got, err := filled.Get(uid)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected filled amount 500, got %s", got.String())
	}
	if cursor.block != 10 {
		t.Fatalf("expected cursor to advance to 10, got %d", cursor.block)
	}
}

// a Buy order's cap side is BuyAmount, not whichever amount happens to
// be non-zero — both are non-zero on a real Trade event.
func TestIndexer_AppliesBuyOrderCapSideByKind(t *testing.T) {
	var uid domain.OrderUID
	uid[0] = 8

	logs := &fakeLogSource{log: Log{
		Trades: []TradeEvent{{OrderUID: uid, SellAmount: big.NewInt(900), BuyAmount: big.NewInt(500), Block: 10}},
	}}
	filled := domain.NewInMemoryFilledRegister()
	idx := New(logs, filled, &memCursor{}, nil, nil, nil)
	idx.SetKindSource(func(u domain.OrderUID) (domain.Kind, bool) {
		if u == uid {
			return domain.Buy, true
		}
		return 0, false
	})

	if err := idx.Advance(context.Background(), 10); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	got, err := filled.Get(uid)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected filled amount 500 (buy-side cap), got %s", got.String())
	}
}

func TestIndexer_InvalidateSetsMaxFilled(t *testing.T) {
	var uid domain.OrderUID
	uid[0] = 9

	logs := &fakeLogSource{log: Log{
		OrderInvalidations: []OrderInvalidatedEvent{{OrderUID: uid, Block: 5}},
	}}
	filled := domain.NewInMemoryFilledRegister()
	idx := New(logs, filled, &memCursor{}, nil, nil, nil)

	if err := idx.Advance(context.Background(), 5); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	got, err := filled.Get(uid)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cmp(domain.MaxFilled) != 0 {
		t.Fatalf("expected invalidated sentinel, got %s", got.String())
	}
}

func TestIndexer_ReconcilesSettlementToAuction(t *testing.T) {
	solver := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	logs := &fakeLogSource{log: Log{
		Settlements: []SettlementEvent{{Solver: solver, TxNonce: 3, Block: 20}},
	}}
	observer := &fakeObserver{}
	auctionOf := func(s common.Address, nonce uint64) (uint64, bool) {
		if s == solver && nonce == 3 {
			return 42, true
		}
		return 0, false
	}

	idx := New(logs, domain.NewInMemoryFilledRegister(), &memCursor{}, observer, auctionOf, nil)
	if err := idx.Advance(context.Background(), 20); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if len(observer.observed) != 1 || observer.observed[0] != 42 {
		t.Fatalf("expected auction 42 to be reconciled, got %v", observer.observed)
	}
}

func TestIndexer_SkipsAlreadyProcessedRange(t *testing.T) {
	logs := &fakeLogSource{}
	cursor := &memCursor{block: 100}
	idx := New(logs, domain.NewInMemoryFilledRegister(), cursor, nil, nil, nil)

	if err := idx.Advance(context.Background(), 50); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if cursor.block != 100 {
		t.Fatalf("expected cursor to stay at 100 when head is behind it, got %d", cursor.block)
	}
}
