// Package driver implements §4.6: the per-auction state machine that
// turns an Auction into a validated, simulated, scored settlement
// proposal, and §6's driver-side JSON API surface.
package driver

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/cowbatch/settlement/pkg/clearing"
	"github.com/cowbatch/settlement/pkg/domain"
	"github.com/cowbatch/settlement/pkg/encoding"
	"github.com/cowbatch/settlement/pkg/scoring"
	"github.com/cowbatch/settlement/pkg/sigverify"
	"github.com/cowbatch/settlement/pkg/simulate"
	"github.com/cowbatch/settlement/pkg/solverengine"
	"github.com/cowbatch/settlement/pkg/submitter"
)

// State names the driver's current stage for one auction run, mirroring
// the Idle/Querying/Validating/Simulating/Scoring/Waiting/Submitting
// state machine.
type State int

const (
	StateIdle State = iota
	StateQuerying
	StateValidating
	StateSimulating
	StateScoring
	StateWaiting
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQuerying:
		return "querying"
	case StateValidating:
		return "validating"
	case StateSimulating:
		return "simulating"
	case StateScoring:
		return "scoring"
	case StateWaiting:
		return "waiting"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// FilledSource reads the authoritative on-chain filled amount for one
// order, used to seed a dry-run FilledRegister before clearing (§9: the
// clearing engine never owns persistent filled state itself).
type FilledSource interface {
	Filled(ctx context.Context, block uint64, uid domain.OrderUID) (*big.Int, error)
}

// Proposal is one solver's solution carried through to the end of the
// pipeline: its executed trades, encoded call, simulated effects, and
// score. SolutionID is the opaque wire identifier used by /reveal and
// /settle — distinct from domain.Solution.ID, which is whatever id the
// solver engine itself assigned internally.
type Proposal struct {
	SolutionID string
	Solution   *domain.Solution
	Executed   []clearing.ExecutedTrade
	Call       *encoding.SettlementCall
	Sim        *simulate.Result
	Score      *big.Int
	GasPrice   *big.Int // auction.EffectiveGasPrice at acceptance time, the submitter's starting broadcast price (§4.7)
}

// Submitter is the narrow capability the driver needs to broadcast a
// validated proposal (§4.7); satisfied by *submitter.Submitter.
type Submitter interface {
	Submit(ctx context.Context, call *encoding.SettlementCall, solver common.Address, deadlineBlock uint64, startGasPrice *big.Int) (*submitter.Result, error)
}

// Busy reports that a driver already has an auction in flight (§4.6
// "per-auction isolation: one in flight").
type Busy struct {
	InFlight uint64
}

func (e *Busy) Error() string {
	return fmt.Sprintf("driver: auction %d already in flight", e.InFlight)
}

// Driver runs one auction at a time through Querying -> Validating ->
// Simulating -> Scoring -> Waiting, and holds the winning proposal
// until a caller (autopilot) reveals or settles it.
type Driver struct {
	engine       solverengine.Engine
	simulator    simulate.Simulator
	chain        sigverify.ChainReader
	filled       FilledSource
	submitter    Submitter
	domain       domain.EIP712Domain
	vaultRelayer common.Address
	settlement   common.Address
	log          *zap.SugaredLogger

	mu          sync.Mutex
	state       State
	inFlightID  uint64
	inFlightSet bool
	results     map[uint64]*runResult // auction id -> last run's outcome, for re-delivery idempotency
	pending     *solutionStore
}

type runResult struct {
	proposals []*Proposal
	best      *Proposal
}

// New builds a Driver. settlement/vaultRelayer are the on-chain
// addresses the encoder needs (§4.3); filled seeds each run's dry-run
// FilledRegister from chain state.
func New(engine solverengine.Engine, simulator simulate.Simulator, chain sigverify.ChainReader, filled FilledSource, eip712Domain domain.EIP712Domain, settlement, vaultRelayer common.Address, log *zap.SugaredLogger) *Driver {
	return &Driver{
		engine:       engine,
		simulator:    simulator,
		chain:        chain,
		filled:       filled,
		domain:       eip712Domain,
		vaultRelayer: vaultRelayer,
		settlement:   settlement,
		log:          log,
		results:      make(map[uint64]*runResult),
		pending:      newSolutionStore(),
	}
}

// Solve runs the full pipeline for auction and returns every proposal
// that survived validation and simulation, sorted best-first by §4.5's
// tiebreak. Re-delivery of an id already in flight or already resolved
// is idempotent: the cached result is returned without re-running the
// engine (§4.6 "idempotent under re-delivery of the same auction id").
func (d *Driver) Solve(ctx context.Context, auction *domain.Auction) ([]*Proposal, error) {
	d.mu.Lock()
	if cached, ok := d.results[auction.ID]; ok {
		d.mu.Unlock()
		return cached.proposals, nil
	}
	if d.inFlightSet && d.inFlightID != auction.ID {
		busy := d.inFlightID
		d.mu.Unlock()
		return nil, &Busy{InFlight: busy}
	}
	d.inFlightSet = true
	d.inFlightID = auction.ID
	d.setState(StateQuerying)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inFlightSet = false
		d.setState(StateIdle)
		d.mu.Unlock()
	}()

	solutions, err := d.query(ctx, auction)
	if err != nil && ctx.Err() == nil {
		d.logEvent(auction.ID, common.Address{}, "engine_error", "error", err.Error())
		return nil, err
	}

	d.setState(StateValidating)
	proposals := make([]*Proposal, 0, len(solutions))
	for _, sol := range solutions {
		if sol == nil {
			continue
		}
		prop, err := d.validateAndClear(ctx, auction, sol)
		if err != nil {
			d.logEvent(auction.ID, sol.Solver, "validation_rejected", "reason", err.Error())
			continue
		}

		d.setState(StateSimulating)
		if err := d.simulateProposal(ctx, auction, prop); err != nil {
			d.logEvent(auction.ID, sol.Solver, "simulation_rejected", "reason", err.Error())
			continue
		}

		d.setState(StateScoring)
		score, err := scoring.Score(auction, prop.Executed, simGasCost(prop.Sim, auction))
		if err != nil {
			d.logEvent(auction.ID, sol.Solver, "scoring_rejected", "reason", err.Error())
			continue
		}
		prop.Score = score
		proposals = append(proposals, prop)
		d.logEvent(auction.ID, sol.Solver, "proposal_scored", "score", score.String())
	}

	sortProposals(proposals)

	d.setState(StateWaiting)
	var best *Proposal
	if len(proposals) > 0 {
		best = proposals[0]
		best.SolutionID = d.pending.put(auction.ID, best)
	}

	d.mu.Lock()
	d.results[auction.ID] = &runResult{proposals: proposals, best: best}
	d.mu.Unlock()

	return proposals, nil
}

// SetSubmitter attaches the broadcast collaborator after construction,
// since pkg/submitter depends on nothing in pkg/driver and wiring it
// the other way round would be a needless import cycle risk.
func (d *Driver) SetSubmitter(s Submitter) { d.submitter = s }

// Reveal returns the proposal behind a previously issued solution id,
// for the /reveal/{solution_id} endpoint.
func (d *Driver) Reveal(solutionID string) (*Proposal, bool) {
	return d.pending.get(solutionID)
}

// Settle hands the proposal behind solutionID to the submitter and
// blocks until a terminal state (§4.6 Submitting -> landed|expired).
func (d *Driver) Settle(ctx context.Context, solutionID string, deadlineBlock uint64) (*submitter.Result, error) {
	prop, ok := d.pending.get(solutionID)
	if !ok {
		return nil, fmt.Errorf("driver: unknown solution id %q", solutionID)
	}
	if d.submitter == nil {
		return nil, fmt.Errorf("driver: no submitter configured")
	}

	d.setState(StateSubmitting)
	defer d.setState(StateIdle)

	result, err := d.submitter.Submit(ctx, prop.Call, prop.Solution.Solver, deadlineBlock, prop.GasPrice)
	if err != nil {
		d.logEvent(prop.Solution.AuctionID, prop.Solution.Solver, "submission_failed", "reason", err.Error())
		return nil, err
	}
	d.logEvent(prop.Solution.AuctionID, prop.Solution.Solver, "submission_resolved", "status", result.Status, "tx_hash", result.TxHash.Hex())
	return result, nil
}

func (d *Driver) query(ctx context.Context, auction *domain.Auction) ([]*domain.Solution, error) {
	engineCtx, cancel := solverengine.WithDeadline(ctx, auction)
	defer cancel()

	solutions, err := d.engine.Solve(engineCtx, auction)
	if err != nil {
		if engineCtx.Err() != nil {
			// Deadline reached with no solutions yet: the best result
			// so far is "none" for a single synchronous engine call.
			return nil, nil
		}
		return nil, fmt.Errorf("driver: engine solve: %w", err)
	}
	return solutions, nil
}

func (d *Driver) validateAndClear(ctx context.Context, auction *domain.Auction, sol *domain.Solution) (*Proposal, error) {
	if err := d.validate(ctx, auction, sol); err != nil {
		return nil, err
	}

	reg := domain.NewInMemoryFilledRegister()
	if d.filled != nil {
		for _, t := range sol.Trades {
			cur, err := d.filled.Filled(ctx, auction.Block, t.OrderUID)
			if err != nil {
				return nil, fmt.Errorf("driver: seed filled amount: %w", err)
			}
			reg.Seed(t.OrderUID, cur)
		}
	}

	engine := clearing.NewEngine(reg, d.domain)
	executed, err := engine.Process(auction.BlockTimestamp, auction, sol)
	if err != nil {
		return nil, fmt.Errorf("driver: clear: %w", err)
	}

	call, err := encoding.Encode(d.domain, auction, sol, d.vaultRelayer)
	if err != nil {
		return nil, fmt.Errorf("driver: encode: %w", err)
	}

	return &Proposal{Solution: sol, Executed: executed, Call: call, GasPrice: auction.EffectiveGasPrice}, nil
}

func (d *Driver) simulateProposal(ctx context.Context, auction *domain.Auction, prop *Proposal) error {
	if d.simulator == nil {
		return nil
	}
	result, err := d.simulator.Simulate(ctx, prop.Call, auction.Block, prop.Solution.Solver, d.settlement)
	if err != nil {
		return fmt.Errorf("driver: simulate: %w", err)
	}
	if err := checkTokenDeltas(prop.Executed, result.TokenDeltas); err != nil {
		return err
	}
	prop.Sim = result
	prop.Solution.Gas = result.GasUsed
	return nil
}

// checkTokenDeltas confirms the simulator's observed net balance change
// for the settlement contract agrees with what clearing computed the
// call should move, for every token the simulator actually reported a
// delta for (§4.4). Tokens absent from deltas (e.g. a Simulator that
// doesn't track them) are left unchecked rather than treated as a
// mismatch.
func checkTokenDeltas(executed []clearing.ExecutedTrade, deltas []simulate.TokenDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	expected := make(map[common.Address]*big.Int)
	add := func(token domain.Token, amount *big.Int) {
		addr := common.Address(token)
		cur, ok := expected[addr]
		if !ok {
			cur = new(big.Int)
		}
		expected[addr] = new(big.Int).Add(cur, amount)
	}
	for _, et := range executed {
		add(et.InTransfer.Token, et.InTransfer.Amount)
		add(et.OutTransfer.Token, new(big.Int).Neg(et.OutTransfer.Amount))
	}

	for _, d := range deltas {
		want, ok := expected[d.Token]
		if !ok {
			want = new(big.Int)
		}
		got := new(big.Int).Sub(d.After, d.Before)
		if want.Cmp(got) != 0 {
			return &domain.TokenDeltaMismatch{Token: d.Token, Want: want, Got: got}
		}
	}
	return nil
}

func simGasCost(result *simulate.Result, auction *domain.Auction) scoring.GasCost {
	if result == nil {
		return scoring.GasCost{}
	}
	gasPrice := auction.EffectiveGasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}
	return scoring.GasCost{GasUsed: result.GasUsed, GasPrice: gasPrice}
}

func sortProposals(proposals []*Proposal) {
	for i := 1; i < len(proposals); i++ {
		j := i
		for j > 0 && better(proposals[j], proposals[j-1]) {
			proposals[j], proposals[j-1] = proposals[j-1], proposals[j]
			j--
		}
	}
}

func better(a, b *Proposal) bool {
	if a.Score == nil || b.Score == nil {
		return false
	}
	return scoring.TieBreak(a.Score, b.Score, a.Solution.Solver, b.Solution.Solver)
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// State reports the driver's current stage, for status endpoints.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) logEvent(auctionID uint64, solver common.Address, event string, kv ...interface{}) {
	if d.log == nil {
		return
	}
	fields := append([]interface{}{"auction_id", auctionID, "solver", solver.Hex()}, kv...)
	d.log.Infow(event, fields...)
}
