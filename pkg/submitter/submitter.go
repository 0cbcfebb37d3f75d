// Package submitter implements §4.7: broadcasting an encoded
// settlement call to one or more mempool targets, bumping gas on new
// blocks, re-simulating to catch liquidity that moved, and cancelling
// in place when a solution stops being winnable.
package submitter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cowbatch/settlement/pkg/encoding"
	"github.com/cowbatch/settlement/pkg/simulate"
	"github.com/cowbatch/settlement/pkg/solvers"
)

// TargetKind names the three broadcast semantics §4.7 requires
// ("public, private-relay, auction-style"), grounded on the teacher's
// three-bucket mempool classifier (pkg/app/core/mempool) generalized
// from in-protocol tx ordering to external broadcast destinations.
type TargetKind int

const (
	Public TargetKind = iota
	PrivateRelay
	Auction
)

func (k TargetKind) String() string {
	switch k {
	case PrivateRelay:
		return "private_relay"
	case Auction:
		return "auction"
	default:
		return "public"
	}
}

// Target is one mempool destination a signed raw transaction is
// broadcast to.
type Target struct {
	Name string
	Kind TargetKind
	send func(ctx context.Context, rawTx []byte) error
}

// NewTarget wraps a broadcast function (typically eth_sendRawTransaction
// against a specific node or relay endpoint) as a Target.
func NewTarget(name string, kind TargetKind, send func(ctx context.Context, rawTx []byte) error) Target {
	return Target{Name: name, Kind: kind, send: send}
}

// Signer builds and signs a raw transaction for solver at the given
// nonce and gas price; key custody is entirely the implementation's
// concern (§6 "solver accounts... must never appear in logs") — this
// package only ever sees the resulting bytes and hash.
type Signer interface {
	Sign(ctx context.Context, solver common.Address, nonce uint64, to common.Address, data []byte, gasPrice *big.Int) (rawTx []byte, txHash common.Hash, err error)
}

// BlockWatcher reports newly observed block numbers, the trigger for
// each gas-price bump and re-simulation pass.
type BlockWatcher interface {
	Next(ctx context.Context) (uint64, error)
}

// InclusionChecker reports whether a broadcast transaction has landed.
type InclusionChecker interface {
	Included(ctx context.Context, txHash common.Hash) (bool, error)
}

// Result is the terminal outcome of one Submit call.
type Result struct {
	TxHash common.Hash
	Status string // always "landed"; timeouts, reverts and nonce gaps are returned as errors
}

// Timeout reports the deadline block passing with no inclusion (§4.7
// SubmissionTimeout).
type Timeout struct{ DeadlineBlock uint64 }

func (e *Timeout) Error() string { return fmt.Sprintf("submitter: deadline block %d passed without inclusion", e.DeadlineBlock) }

// Reverted reports the re-simulation finding the call would now
// revert (§4.7 SubmissionReverted).
type Reverted struct{ Reason string }

func (e *Reverted) Error() string { return fmt.Sprintf("submitter: re-simulation reverted: %s", e.Reason) }

// NonceGap reports the solver's on-chain nonce not matching what this
// package expected — fatal, escalated rather than retried (§4.7
// SubmissionNonceGap).
type NonceGap struct {
	Solver   common.Address
	Expected uint64
	Observed uint64
}

func (e *NonceGap) Error() string {
	return fmt.Sprintf("submitter: nonce gap for %s: expected %d, observed %d", e.Solver.Hex(), e.Expected, e.Observed)
}

const gasBumpNumerator, gasBumpDenominator = 11, 10 // +10% per bump

// Submitter coordinates broadcast, gas bumping, re-simulation, and
// cancellation for one solution at a time per solver (the exclusivity
// itself is owned by solvers.Registry, held by the caller around
// Submit).
type Submitter struct {
	targets   []Target
	signer    Signer
	blocks    BlockWatcher
	inclusion InclusionChecker
	sim       simulate.Simulator
	nonces    *solvers.Registry
	settlement common.Address
	log       *zap.SugaredLogger
}

func New(targets []Target, signer Signer, blocks BlockWatcher, inclusion InclusionChecker, sim simulate.Simulator, nonces *solvers.Registry, settlement common.Address, log *zap.SugaredLogger) *Submitter {
	return &Submitter{
		targets:    targets,
		signer:     signer,
		blocks:     blocks,
		inclusion:  inclusion,
		sim:        sim,
		nonces:     nonces,
		settlement: settlement,
		log:        log,
	}
}

// Submit broadcasts call for solver and drives it to a terminal state:
// landed, timed out at deadlineBlock, reverted on re-simulation (in
// which case a cancellation no-op is sent at the same nonce), or a
// fatal nonce gap. startGasPrice is the price the first broadcast uses
// (the auction's effective_gas_price is the expected source — §4.5,
// §6); a nil or non-positive value falls back to 1 wei so the bump
// loop still makes progress rather than signing a zero-price tx that
// will never be included. Callers must hold solver's exclusive lock
// (solvers.Registry.Lock) across this call (§5).
func (s *Submitter) Submit(ctx context.Context, call *encoding.SettlementCall, solver common.Address, deadlineBlock uint64, startGasPrice *big.Int) (*Result, error) {
	nonce, err := s.nonces.Nonce(solver)
	if err != nil {
		return nil, fmt.Errorf("submitter: nonce: %w", err)
	}

	data, err := call.Pack()
	if err != nil {
		return nil, fmt.Errorf("submitter: pack: %w", err)
	}

	gasPrice := startGasPrice
	if gasPrice == nil || gasPrice.Sign() <= 0 {
		gasPrice = big.NewInt(1)
	}
	raw, txHash, err := s.signer.Sign(ctx, solver, nonce, s.settlement, data, gasPrice)
	if err != nil {
		return nil, fmt.Errorf("submitter: sign: %w", err)
	}

	if err := s.broadcastAll(ctx, raw); err != nil {
		return nil, fmt.Errorf("submitter: broadcast: %w", err)
	}
	s.logEvent(solver, "submitted", "nonce", nonce, "tx_hash", txHash.Hex())

	for {
		block, err := s.blocks.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("submitter: watch blocks: %w", err)
		}

		included, err := s.inclusion.Included(ctx, txHash)
		if err != nil {
			return nil, fmt.Errorf("submitter: check inclusion: %w", err)
		}
		if included {
			if err := s.nonces.Advance(solver, nonce); err != nil {
				return nil, err
			}
			s.logEvent(solver, "landed", "tx_hash", txHash.Hex(), "block", block)
			return &Result{TxHash: txHash, Status: "landed"}, nil
		}

		if block >= deadlineBlock && deadlineBlock > 0 {
			s.logEvent(solver, "timeout", "tx_hash", txHash.Hex(), "deadline_block", deadlineBlock)
			return nil, &Timeout{DeadlineBlock: deadlineBlock}
		}

		if s.sim != nil {
			if _, err := s.sim.Simulate(ctx, call, block, solver, s.settlement); err != nil {
				if revert, ok := err.(*simulate.Revert); ok {
					cancelRaw, cancelHash, cerr := s.signer.Sign(ctx, solver, nonce, solver, nil, new(big.Int).Mul(gasPrice, big.NewInt(2)))
					if cerr != nil {
						return nil, fmt.Errorf("submitter: sign cancellation: %w", cerr)
					}
					if err := s.broadcastAll(ctx, cancelRaw); err != nil {
						return nil, fmt.Errorf("submitter: broadcast cancellation: %w", err)
					}
					if err := s.nonces.Advance(solver, nonce); err != nil {
						return nil, err
					}
					s.logEvent(solver, "cancelled", "reason", revert.Reason, "tx_hash", cancelHash.Hex())
					return nil, &Reverted{Reason: revert.Reason}
				}
				// A node/transport failure during re-simulation doesn't
				// invalidate the submission; keep watching.
			}
		}

		bumped := new(big.Int).Quo(new(big.Int).Mul(gasPrice, big.NewInt(gasBumpNumerator)), big.NewInt(gasBumpDenominator))
		if bumped.Cmp(gasPrice) <= 0 {
			// below 10 wei the +10% rounds away; step by 1 wei instead
			bumped = new(big.Int).Add(gasPrice, big.NewInt(1))
		}
		gasPrice = bumped
		raw, txHash, err = s.signer.Sign(ctx, solver, nonce, s.settlement, data, gasPrice)
		if err != nil {
			return nil, fmt.Errorf("submitter: re-sign with bumped gas: %w", err)
		}
		if err := s.broadcastAll(ctx, raw); err != nil {
			return nil, fmt.Errorf("submitter: rebroadcast: %w", err)
		}
		s.logEvent(solver, "rebroadcast", "nonce", nonce, "gas_price", gasPrice.String(), "tx_hash", txHash.Hex())
	}
}

func (s *Submitter) broadcastAll(ctx context.Context, raw []byte) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.targets {
		t := t
		g.Go(func() error {
			if err := t.send(gctx, raw); err != nil {
				if s.log != nil {
					s.log.Warnw("submitter: broadcast failed", "target", t.Name, "error", err)
				}
				return nil // one target failing doesn't fail the whole broadcast
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Submitter) logEvent(solver common.Address, event string, kv ...interface{}) {
	if s.log == nil {
		return
	}
	fields := append([]interface{}{"solver", solver.Hex()}, kv...)
	s.log.Infow(event, fields...)
}
