package driver

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/clearing"
	"github.com/cowbatch/settlement/pkg/domain"
	"github.com/cowbatch/settlement/pkg/simulate"
)

func TestCheckTokenDeltas_NoReportedDeltasSkipsCheck(t *testing.T) {
	if err := checkTokenDeltas(nil, nil); err != nil {
		t.Fatalf("expected no error when the simulator reports no deltas, got %v", err)
	}
}

func TestCheckTokenDeltas_AgreeingDeltaPasses(t *testing.T) {
	executed := []clearing.ExecutedTrade{{
		InTransfer:  clearing.Transfer{Token: weth, Amount: big.NewInt(1000)},
		OutTransfer: clearing.Transfer{Token: usdc, Amount: big.NewInt(500)},
	}}
	deltas := []simulate.TokenDelta{
		{Token: common.Address(weth), Before: big.NewInt(0), After: big.NewInt(1000)},
		{Token: common.Address(usdc), Before: big.NewInt(0), After: big.NewInt(-500)},
	}
	if err := checkTokenDeltas(executed, deltas); err != nil {
		t.Fatalf("expected matching deltas to pass, got %v", err)
	}
}

func TestCheckTokenDeltas_DisagreeingDeltaRejected(t *testing.T) {
	executed := []clearing.ExecutedTrade{{
		InTransfer: clearing.Transfer{Token: weth, Amount: big.NewInt(1000)},
	}}
	deltas := []simulate.TokenDelta{
		{Token: common.Address(weth), Before: big.NewInt(0), After: big.NewInt(1500)},
	}
	err := checkTokenDeltas(executed, deltas)
	if err == nil {
		t.Fatal("expected a mismatch rejection")
	}
	if _, ok := err.(*domain.TokenDeltaMismatch); !ok {
		t.Fatalf("expected *domain.TokenDeltaMismatch, got %T: %v", err, err)
	}
}
