package autopilot

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/domain"
)

var weth = domain.Token(common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"))
var usdc = domain.Token(common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))

type fakeBook struct {
	orders []domain.AuctionOrder
	prices map[domain.Token]*big.Rat
}

func (f *fakeBook) OpenOrders(context.Context) ([]domain.AuctionOrder, error) { return f.orders, nil }
func (f *fakeBook) NativePrices(_ context.Context, tokens []domain.Token) (map[domain.Token]*big.Rat, error) {
	out := make(map[domain.Token]*big.Rat)
	for _, t := range tokens {
		if p, ok := f.prices[t]; ok {
			out[t] = p
		} else {
			out[t] = big.NewRat(1, 1)
		}
	}
	out[domain.NativeToken] = big.NewRat(1, 1)
	return out, nil
}

type fakeTip struct{ block uint64 }

func (f *fakeTip) Tip(context.Context) (uint64, uint32, error) { return f.block, 1000, nil }

type fakeDriver struct {
	name      string
	solutions []DriverSolution
	settled   []string
}

func (f *fakeDriver) Name() string { return f.name }
func (f *fakeDriver) Solve(context.Context, *domain.Auction) ([]DriverSolution, error) {
	return f.solutions, nil
}
func (f *fakeDriver) Settle(_ context.Context, solutionID string, _ uint64) error {
	f.settled = append(f.settled, solutionID)
	return nil
}

func order(uid byte, sellAmt, buyAmt int64) domain.AuctionOrder {
	var u domain.OrderUID
	u[0] = uid
	return domain.AuctionOrder{
		UID:   u,
		Owner: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Order: domain.Order{
			SellToken:         weth,
			BuyToken:          usdc,
			SellAmount:        big.NewInt(sellAmt),
			BuyAmount:         big.NewInt(buyAmt),
			FeeAmount:         big.NewInt(0),
			ValidTo:           2000000000,
			Kind:              domain.Sell,
			PartiallyFillable: false,
			SellTokenBalance:  domain.SourceErc20,
			BuyTokenBalance:   domain.DestinationErc20,
			SigningScheme:     domain.PreSign,
		},
	}
}

func solutionFor(ao domain.AuctionOrder, solver common.Address) *domain.Solution {
	return &domain.Solution{
		Trades: []domain.Trade{{
			OrderUID:       ao.UID,
			SellTokenIndex: 0,
			BuyTokenIndex:  1,
			ExecutedAmount: ao.Order.SellAmount,
		}},
		ClearingPrices: map[domain.Token]*big.Int{
			weth: big.NewInt(1500),
			usdc: big.NewInt(1),
		},
		Solver: solver,
		Gas:    100000,
	}
}

func TestAutopilot_PicksHigherScoringDriver(t *testing.T) {
	ao := order(1, 1000, 1000)
	solverA := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	solverB := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	driverA := &fakeDriver{name: "a", solutions: []DriverSolution{{SolutionID: "sol-a", Solution: solutionFor(ao, solverA)}}}
	// b clears WETH at 2000 instead of 1500, giving the trader more surplus
	solB := solutionFor(ao, solverB)
	solB.ClearingPrices[weth] = big.NewInt(2000)
	driverB := &fakeDriver{name: "b", solutions: []DriverSolution{{SolutionID: "sol-b", Solution: solB}}}

	ap := New(Config{
		Book:    &fakeBook{orders: []domain.AuctionOrder{ao}},
		Tip:     &fakeTip{block: 100},
		Drivers: []DriverClient{driverA, driverB},
		Tick:    time.Second,
		Deadline: time.Second,
	})

	if err := ap.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(driverB.settled) != 1 || len(driverA.settled) != 0 {
		t.Fatalf("expected only the higher-scoring driver b to settle, got a=%v b=%v", driverA.settled, driverB.settled)
	}
	if ap.InFlightCount() != 1 {
		t.Fatalf("expected 1 in-flight entry, got %d", ap.InFlightCount())
	}
}

func TestAutopilot_ExcludesInFlightOrders(t *testing.T) {
	ao := order(2, 500, 500)
	solver := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	driver := &fakeDriver{name: "only", solutions: []DriverSolution{{SolutionID: "sol-1", Solution: solutionFor(ao, solver)}}}

	ap := New(Config{
		Book:     &fakeBook{orders: []domain.AuctionOrder{ao}},
		Tip:      &fakeTip{block: 50},
		Drivers:  []DriverClient{driver},
		Tick:     time.Second,
		Deadline: time.Second,
	})

	if err := ap.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	if ap.InFlightCount() != 1 {
		t.Fatalf("expected 1 in-flight entry after first round, got %d", ap.InFlightCount())
	}

	// second tick: the same order is still open per the book, but now in flight
	driver.solutions = []DriverSolution{{SolutionID: "sol-2", Solution: solutionFor(ao, solver)}}
	if err := ap.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(driver.settled) != 1 {
		t.Fatalf("expected no second settlement dispatch since the only order is in flight, got %d", len(driver.settled))
	}
}

func TestAutopilot_RetireExpired(t *testing.T) {
	ap := New(Config{
		Book:     &fakeBook{},
		Tip:      &fakeTip{},
		Drivers:  nil,
		Tick:     time.Second,
		Deadline: time.Second,
	})
	ap.inFlight[1] = &domain.InFlightEntry{AuctionID: 1, DeadlineBlock: 100}

	ap.RetireExpired(50)
	if ap.InFlightCount() != 1 {
		t.Fatalf("expected entry to survive before its deadline block")
	}
	ap.RetireExpired(100)
	if ap.InFlightCount() != 0 {
		t.Fatalf("expected entry to be retired at its deadline block")
	}
}
