package simulate

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func transferLog(token, from, to common.Address, amount *big.Int) traceLog {
	return traceLog{
		Address: token,
		Topics: []common.Hash{
			transferEventTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(amount.Bytes(), 32),
	}
}

func TestDeriveTokenDeltas_NetsCreditsAndDebits(t *testing.T) {
	settlement := common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41")
	trader := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	weth := common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdc := common.HexToAddress("0x2222222222222222222222222222222222222222")

	trace := &callFrame{
		Logs: []traceLog{
			transferLog(weth, trader, settlement, big.NewInt(1e18)),
		},
		Calls: []callFrame{
			{Logs: []traceLog{
				transferLog(usdc, settlement, trader, big.NewInt(1600_000000)),
			}},
		},
	}

	deltas := deriveTokenDeltas(trace, []common.Address{weth, usdc}, settlement)
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(deltas))
	}
	for _, d := range deltas {
		switch d.Token {
		case weth:
			if d.After.Cmp(big.NewInt(1e18)) != 0 {
				t.Errorf("weth net = %s, want +1e18", d.After)
			}
		case usdc:
			if d.After.Sign() >= 0 {
				t.Errorf("usdc net = %s, want negative (settlement paid out)", d.After)
			}
		}
	}
}

func TestDeriveTokenDeltas_IgnoresUnwatchedTokens(t *testing.T) {
	settlement := common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41")
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	trader := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	trace := &callFrame{Logs: []traceLog{transferLog(other, trader, settlement, big.NewInt(1))}}
	deltas := deriveTokenDeltas(trace, nil, settlement)
	if len(deltas) != 0 {
		t.Fatalf("expected no deltas for an unwatched token, got %d", len(deltas))
	}
}
