package solverengine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/domain"
)

var (
	weth = domain.Token(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	usdc = domain.Token(common.HexToAddress("0x2222222222222222222222222222222222222222"))
)

func TestBaselineEngine_DirectCoWMatch(t *testing.T) {
	sellWeth := domain.AuctionOrder{
		UID:   domain.OrderUID{0x01},
		Owner: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Order: domain.Order{
			SellToken:  weth,
			BuyToken:   usdc,
			SellAmount: big.NewInt(1e18),
			BuyAmount:  big.NewInt(1500_000000),
			Kind:       domain.Sell,
		},
	}
	sellUsdc := domain.AuctionOrder{
		UID:   domain.OrderUID{0x02},
		Owner: common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
		Order: domain.Order{
			SellToken:  usdc,
			BuyToken:   weth,
			SellAmount: big.NewInt(1600_000000),
			BuyAmount:  big.NewInt(9 * 1e17), // willing to pay up to 1600 USDC for 0.9 WETH, i.e. accepts a rate richer than 1500
		},
	}
	auction := &domain.Auction{
		ID:     1,
		Orders: []domain.AuctionOrder{sellWeth, sellUsdc},
	}

	e := NewBaselineEngine()
	solutions, err := e.Solve(context.Background(), auction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(solutions) != 1 {
		t.Fatalf("expected 1 solution, got %d", len(solutions))
	}
	sol := solutions[0]
	if len(sol.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(sol.Trades))
	}
	if _, ok := sol.ClearingPrices[weth]; !ok {
		t.Fatal("missing clearing price for weth")
	}
	if _, ok := sol.ClearingPrices[usdc]; !ok {
		t.Fatal("missing clearing price for usdc")
	}
}

func TestBaselineEngine_NoMatchWhenLimitsDontCross(t *testing.T) {
	sellWeth := domain.AuctionOrder{
		UID: domain.OrderUID{0x01},
		Order: domain.Order{
			SellToken: weth, BuyToken: usdc,
			SellAmount: big.NewInt(1e18), BuyAmount: big.NewInt(2000_000000),
			Kind: domain.Sell,
		},
	}
	sellUsdc := domain.AuctionOrder{
		UID: domain.OrderUID{0x02},
		Order: domain.Order{
			SellToken: usdc, BuyToken: weth,
			SellAmount: big.NewInt(1000_000000), BuyAmount: big.NewInt(9 * 1e17),
			Kind: domain.Sell,
		},
	}
	auction := &domain.Auction{ID: 1, Orders: []domain.AuctionOrder{sellWeth, sellUsdc}}

	e := NewBaselineEngine()
	solutions, err := e.Solve(context.Background(), auction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(solutions) != 0 {
		t.Fatalf("expected no solutions for non-crossing limits, got %d", len(solutions))
	}
}
