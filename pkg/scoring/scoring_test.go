package scoring

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/clearing"
	"github.com/cowbatch/settlement/pkg/domain"
)

var (
	weth = domain.Token(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	usdc = domain.Token(common.HexToAddress("0x2222222222222222222222222222222222222222"))
)

func TestScore_SellSurplus(t *testing.T) {
	owner := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	var uid domain.OrderUID
	uid[0] = 1

	order := domain.Order{
		SellToken:  weth,
		BuyToken:   usdc,
		SellAmount: big.NewInt(1e18),
		BuyAmount:  big.NewInt(1500_000000), // limit: 1500 USDC per WETH
		Kind:       domain.Sell,
	}
	auction := &domain.Auction{
		Orders: []domain.AuctionOrder{{UID: uid, Owner: owner, Order: order}},
		NativePrices: map[domain.Token]*big.Rat{
			usdc: big.NewRat(500_000000, 1), // 1 USDC atom = 5e8 native atoms (1 USDC = 1/2000 of the native token)
		},
	}
	executed := []clearing.ExecutedTrade{{
		UID:          uid,
		Owner:        owner,
		Order:        order,
		ExecutedSell: big.NewInt(1e18),
		ExecutedBuy:  big.NewInt(1600_000000), // cleared at 1600, better than the 1500 limit
	}}

	score, err := Score(auction, executed, GasCost{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Sign() <= 0 {
		t.Fatalf("expected positive surplus score, got %s", score)
	}
}

func TestScore_IneligibleOwnerContributesNothing(t *testing.T) {
	owner := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	var uid domain.OrderUID
	uid[0] = 2

	order := domain.Order{SellToken: weth, BuyToken: usdc, SellAmount: big.NewInt(1e18), BuyAmount: big.NewInt(1500_000000), Kind: domain.Sell}
	// auction.Orders deliberately empty: this trade's UID is unknown to
	// the auction and its owner is not in SurplusCapturingOwners.
	auction := &domain.Auction{
		NativePrices: map[domain.Token]*big.Rat{usdc: big.NewRat(500_000000, 1)},
	}
	executed := []clearing.ExecutedTrade{{UID: uid, Owner: owner, Order: order, ExecutedSell: order.SellAmount, ExecutedBuy: big.NewInt(1700_000000)}}

	score, err := Score(auction, executed, GasCost{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Sign() != 0 {
		t.Fatalf("expected zero score for ineligible/unknown trade, got %s", score)
	}
}

func TestScore_SurplusCapturingOwnerEligibleOutsideOrderSet(t *testing.T) {
	owner := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	var uid domain.OrderUID
	uid[0] = 3

	order := domain.Order{SellToken: weth, BuyToken: usdc, SellAmount: big.NewInt(1e18), BuyAmount: big.NewInt(1500_000000), Kind: domain.Sell}
	auction := &domain.Auction{
		// no Orders entries — this is a JIT order, not part of the
		// published auction order set.
		SurplusCapturingOwners: map[common.Address]struct{}{owner: {}},
		NativePrices:           map[domain.Token]*big.Rat{usdc: big.NewRat(500_000000, 1)},
	}
	executed := []clearing.ExecutedTrade{{UID: uid, Owner: owner, Order: order, ExecutedSell: order.SellAmount, ExecutedBuy: big.NewInt(1700_000000)}}

	// a JIT order's owner being on the surplus-capturing allow-list is
	// enough to be eligible, regardless of UID membership in the
	// auction's published order set (§9).
	score, err := Score(auction, executed, GasCost{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Sign() <= 0 {
		t.Fatalf("expected positive surplus score for surplus-capturing JIT order, got %s", score)
	}
}

func TestScore_GasCostSubtracted(t *testing.T) {
	owner := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	var uid domain.OrderUID
	uid[0] = 4

	order := domain.Order{SellToken: weth, BuyToken: usdc, SellAmount: big.NewInt(1e18), BuyAmount: big.NewInt(1500_000000), Kind: domain.Sell}
	auction := &domain.Auction{
		Orders:       []domain.AuctionOrder{{UID: uid, Owner: owner, Order: order}},
		NativePrices: map[domain.Token]*big.Rat{usdc: big.NewRat(500_000000, 1), domain.NativeToken: big.NewRat(1, 1)},
	}
	executed := []clearing.ExecutedTrade{{UID: uid, Owner: owner, Order: order, ExecutedSell: order.SellAmount, ExecutedBuy: big.NewInt(1510_000000)}}

	noGas, _ := Score(auction, executed, GasCost{})
	withGas, _ := Score(auction, executed, GasCost{GasUsed: 200000, GasPrice: big.NewInt(50_000_000_000)})
	if withGas.Cmp(noGas) >= 0 {
		t.Fatalf("expected gas-inclusive score (%s) < gas-free score (%s)", withGas, noGas)
	}
}

func TestTieBreak_LexicographicSolverAddress(t *testing.T) {
	a := common.HexToAddress("0x0000000000000000000000000000000000000001")
	b := common.HexToAddress("0x0000000000000000000000000000000000000002")
	if !TieBreak(big.NewInt(10), big.NewInt(10), a, b) {
		t.Fatal("expected a to win the tie by lower address")
	}
	if TieBreak(big.NewInt(10), big.NewInt(10), b, a) {
		t.Fatal("expected b to lose the tie to the lower address a")
	}
}
