package simulate

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cowbatch/settlement/pkg/encoding"
)

// RPCClient is the narrow slice of *rpc.Client (go-ethereum/rpc) this
// package needs — letting tests substitute a fake without standing up
// a node. *rpc.Client already satisfies this directly; no adapter
// needed in production.
type RPCClient interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// OverrideAccount is one entry of the eth_call/eth_estimateGas state
// override set go-ethereum's node exposes (EIP on top of the base
// JSON-RPC spec): the simulator uses it to pre-fund the solver address
// with the native balance it needs to post bonds or pay gas mid-call.
type OverrideAccount struct {
	Balance *hexutil.Big `json:"balance,omitempty"`
	Nonce   *hexutil.Uint64 `json:"nonce,omitempty"`
}

// StateOverride is the full override map, keyed by address.
type StateOverride map[common.Address]OverrideAccount

type callObject struct {
	From common.Address `json:"from"`
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// RPCSimulator is the production Simulator: it drives a node's
// eth_estimateGas (for gas, state-override aware) and debug_traceCall
// (callTracer with logs, to recover ERC20 Transfer events touching the
// settlement contract) against a pinned block (§4.4).
type RPCSimulator struct {
	client RPCClient
	// nativeBalanceHint is how much native-token balance to pre-fund
	// the solver with via state override, covering bonds the
	// settlement contract might pull mid-call.
	nativeBalanceHint *big.Int
}

// NewRPCSimulator builds a node-backed simulator. nativeBalanceHint may
// be nil (no pre-funding override).
func NewRPCSimulator(client RPCClient, nativeBalanceHint *big.Int) *RPCSimulator {
	return &RPCSimulator{client: client, nativeBalanceHint: nativeBalanceHint}
}

func (s *RPCSimulator) Simulate(ctx context.Context, call *encoding.SettlementCall, block uint64, solver common.Address, settlement common.Address) (*Result, error) {
	packed, err := call.Pack()
	if err != nil {
		return nil, &BadState{Detail: fmt.Sprintf("pack settlement call: %v", err)}
	}

	selector := crypto.Keccak256([]byte("settle(address[],uint256[],(uint16,uint16,address,uint256,uint256,uint32,bytes32,uint256,uint8,uint256,bytes)[],(address,uint256,bytes)[][3])"))[:4]
	data := append(append([]byte{}, selector...), packed...)

	callMsg := callObject{From: solver, To: settlement, Data: data}
	blockParam := hexutil.EncodeUint64(block)

	override := StateOverride{}
	if s.nativeBalanceHint != nil {
		override[solver] = OverrideAccount{Balance: (*hexutil.Big)(s.nativeBalanceHint)}
	}

	var gasHex hexutil.Uint64
	if err := s.client.CallContext(ctx, &gasHex, "eth_estimateGas", callMsg, blockParam, override); err != nil {
		if isRevert(err) {
			return nil, &Revert{Reason: err.Error()}
		}
		return nil, &NodeUnavailable{Cause: err}
	}

	gasUsed := uint64(gasHex)
	overhead := perBalanceReadOverhead * uint64(len(call.Tokens))
	if gasUsed > overhead {
		gasUsed -= overhead
	}

	var trace callFrame
	traceConfig := map[string]interface{}{"tracer": "callTracer", "tracerConfig": map[string]bool{"withLog": true}}
	if err := s.client.CallContext(ctx, &trace, "debug_traceCall", callMsg, blockParam, traceConfig); err != nil {
		return nil, &NodeUnavailable{Cause: err}
	}
	if trace.Error != "" {
		return nil, &Revert{Reason: trace.Error}
	}

	deltas := deriveTokenDeltas(&trace, call.Tokens, settlement)
	return &Result{GasUsed: gasUsed, TokenDeltas: deltas}, nil
}

// callFrame is the minimal shape of a callTracer (withLog) result this
// package reads: every nested call's logs, recursively.
type callFrame struct {
	Error string      `json:"error"`
	Logs  []traceLog  `json:"logs"`
	Calls []callFrame `json:"calls"`
}

type traceLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

var transferEventTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// deriveTokenDeltas walks every Transfer log emitted by the traced call
// and nets out credits/debits to settlement, per watched token — the
// only deterministic way to recover ERC20 balance changes from a single
// simulated call without assuming a storage layout for every token.
func deriveTokenDeltas(trace *callFrame, tokens []common.Address, settlement common.Address) []TokenDelta {
	watched := make(map[common.Address]*big.Int, len(tokens))
	for _, t := range tokens {
		watched[t] = big.NewInt(0)
	}

	var walk func(f *callFrame)
	walk = func(f *callFrame) {
		for _, lg := range f.Logs {
			net, ok := watched[lg.Address]
			if !ok || len(lg.Topics) != 3 || lg.Topics[0] != transferEventTopic {
				continue
			}
			from := common.BytesToAddress(lg.Topics[1].Bytes())
			to := common.BytesToAddress(lg.Topics[2].Bytes())
			amount := new(big.Int).SetBytes(lg.Data)
			switch settlement {
			case to:
				net.Add(net, amount)
			case from:
				net.Sub(net, amount)
			}
		}
		for i := range f.Calls {
			walk(&f.Calls[i])
		}
	}
	walk(trace)

	out := make([]TokenDelta, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, TokenDelta{Token: t, Before: big.NewInt(0), After: watched[t]})
	}
	return out
}

// isRevert distinguishes a contract revert (the node answered, the call
// failed) from a transport failure — go-ethereum's JSON-RPC error
// responses for eth_estimateGas/eth_call carry "execution reverted" in
// the message for the former.
func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "revert")
}
