package simulate

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/encoding"
)

// FakeSimulator is a scripted Simulator for driver/autopilot tests —
// no node, no nondeterminism, exactly the result the test wants.
type FakeSimulator struct {
	Result *Result
	Err    error
	Calls  int
}

func (f *FakeSimulator) Simulate(_ context.Context, _ *encoding.SettlementCall, _ uint64, _ common.Address, _ common.Address) (*Result, error) {
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}
