package encoding

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/domain"
)

var (
	relayer    = common.HexToAddress("0xC92E8bdf79f0507f65a392b0ab4667716BFE0110")
	weth       = domain.Token(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	usdc       = domain.Token(common.HexToAddress("0x2222222222222222222222222222222222222222"))
	testDomain = domain.SettlementDomain(big.NewInt(1), common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41"))
)

func basicAuctionAndSolution() (*domain.Auction, *domain.Solution, domain.OrderUID) {
	owner := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	var orderUID domain.OrderUID
	orderUID[0] = 1

	order := domain.Order{
		SellToken:        weth,
		BuyToken:         usdc,
		SellAmount:       big.NewInt(1e18),
		BuyAmount:        big.NewInt(1500_000000),
		ValidTo:          2000000000,
		FeeAmount:        big.NewInt(0),
		Kind:             domain.Sell,
		SellTokenBalance: domain.SourceErc20,
		BuyTokenBalance:  domain.DestinationErc20,
		SigningScheme:    domain.Eip712,
		Signature:        make([]byte, 65),
	}
	auction := &domain.Auction{
		ID:     1,
		Orders: []domain.AuctionOrder{{UID: orderUID, Owner: owner, Order: order}},
	}
	solution := &domain.Solution{
		ID:        1,
		AuctionID: 1,
		Trades:    []domain.Trade{{OrderUID: orderUID, ExecutedAmount: order.SellAmount}},
		ClearingPrices: map[domain.Token]*big.Int{
			weth: big.NewInt(2000_000000),
			usdc: big.NewInt(1),
		},
	}
	return auction, solution, orderUID
}

func TestEncode_TokenOrderingAndIndices(t *testing.T) {
	auction, solution, _ := basicAuctionAndSolution()

	call, err := Encode(testDomain, auction, solution, relayer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(call.Tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(call.Tokens))
	}
	// weth (...1111) sorts before usdc (...2222).
	if call.Tokens[0] != weth.Address() || call.Tokens[1] != usdc.Address() {
		t.Fatalf("unexpected token order: %v", call.Tokens)
	}
	trade := call.Trades[0]
	if trade.SellTokenIndex != 0 || trade.BuyTokenIndex != 1 {
		t.Fatalf("unexpected token indices: sell=%d buy=%d", trade.SellTokenIndex, trade.BuyTokenIndex)
	}
	if len(call.ClearingPrices) != 2 {
		t.Fatalf("expected 2 clearing prices, got %d", len(call.ClearingPrices))
	}
}

func TestEncode_VaultRelayerTargetRejected(t *testing.T) {
	auction, solution, _ := basicAuctionAndSolution()
	solution.Interactions.Intra = []domain.Interaction{{Target: relayer, Value: big.NewInt(0)}}

	if _, err := Encode(testDomain, auction, solution, relayer); err == nil {
		t.Fatal("expected vault relayer target rejection")
	}
}

func TestEncode_MissingClearingPriceRejected(t *testing.T) {
	auction, solution, _ := basicAuctionAndSolution()
	delete(solution.ClearingPrices, usdc)

	if _, err := Encode(testDomain, auction, solution, relayer); err == nil {
		t.Fatal("expected missing clearing price rejection")
	}
}

func TestSettlementCall_Pack(t *testing.T) {
	auction, solution, _ := basicAuctionAndSolution()
	call, err := Encode(testDomain, auction, solution, relayer)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	packed, err := call.Pack()
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(packed) == 0 {
		t.Fatal("expected non-empty packed call data")
	}
}
