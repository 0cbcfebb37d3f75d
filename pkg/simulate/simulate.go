// Package simulate implements §4.4: executing an encoded settlement
// call against a pinned blockchain state before it is ever broadcast,
// so the driver can reject a solution whose claimed gas and token
// deltas don't hold up.
package simulate

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/encoding"
)

// perBalanceReadOverhead is the fixed gas cost this package's own
// instrumentation adds per token balance read around the settlement
// call; subtracted from the raw trace gas so callers see only the
// contract's own consumption (§4.4 "gas overhead of simulation-only
// instrumentation must be subtracted").
const perBalanceReadOverhead = 2_600 // cold SLOAD, matches EIP-2929

// TokenDelta is a token's balance change for the settlement contract
// across the simulated call.
type TokenDelta struct {
	Token  common.Address
	Before *big.Int
	After  *big.Int
}

// Result is what Simulate returns for a non-reverting call.
type Result struct {
	GasUsed     uint64
	TokenDeltas []TokenDelta
}

// Revert is the structured revert reason for a call that failed
// on-chain, distinct from a transport/node failure.
type Revert struct {
	Reason string
}

func (r *Revert) Error() string { return fmt.Sprintf("simulate: reverted: %s", r.Reason) }

// NodeUnavailable reports a transport-level failure talking to the
// simulation node — retriable, unlike a Revert (§4.4).
type NodeUnavailable struct {
	Cause error
}

func (e *NodeUnavailable) Error() string { return fmt.Sprintf("simulate: node unavailable: %v", e.Cause) }
func (e *NodeUnavailable) Unwrap() error { return e.Cause }

// BadState reports a pinned-block/state-override combination the node
// rejected as invalid — fatal for the proposal it was simulating, not
// retriable (§4.4).
type BadState struct {
	Detail string
}

func (e *BadState) Error() string { return fmt.Sprintf("simulate: bad state: %s", e.Detail) }

// Simulator is the narrow capability the driver needs: execute an
// encoded settlement call impersonating solver, against the state at
// block, and report gas plus token deltas. Implementations must be
// deterministic for the same (call, block, solver) (§4.4).
type Simulator interface {
	Simulate(ctx context.Context, call *encoding.SettlementCall, block uint64, solver common.Address, settlement common.Address) (*Result, error)
}
