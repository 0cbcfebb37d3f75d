// Package autopilot implements §4.8: the global auction lifecycle that
// snapshots open orders, runs drivers against each other in parallel,
// independently re-derives the winner's score before trusting it, and
// tracks in-flight settlements so their orders aren't re-auctioned.
package autopilot

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cowbatch/settlement/pkg/clearing"
	"github.com/cowbatch/settlement/pkg/domain"
	"github.com/cowbatch/settlement/pkg/scoring"
	"github.com/cowbatch/settlement/pkg/util"
)

// OrderbookSnapshot is the narrow read interface autopilot needs from
// the orderbook collaborator (out of scope, §1): the current set of
// open orders and native-token prices.
type OrderbookSnapshot interface {
	OpenOrders(ctx context.Context) ([]domain.AuctionOrder, error)
	NativePrices(ctx context.Context, tokens []domain.Token) (map[domain.Token]*big.Rat, error)
}

// ChainTip reports the latest observed block for a fresh auction's
// Block/BlockTimestamp fields.
type ChainTip interface {
	Tip(ctx context.Context) (block uint64, timestamp uint32, err error)
}

// DriverSolution is one candidate a driver proposed for the current
// auction (§6 /solve response), enough for autopilot to independently
// re-derive its score before trusting it (§4.8 step 5).
type DriverSolution struct {
	SolutionID string
	Solution   *domain.Solution
}

// DriverClient is one configured driver endpoint's /solve, /settle
// capability (§6 Driver JSON API); httpclient.go implements it over
// HTTP.
type DriverClient interface {
	Name() string
	Solve(ctx context.Context, auction *domain.Auction) ([]DriverSolution, error)
	Settle(ctx context.Context, solutionID string, deadlineBlock uint64) error
}

// Candidate is one driver's winning-eligible proposal after independent
// rescoring, kept around for logging/disqualification reasons.
type Candidate struct {
	Driver       string
	Solution     DriverSolution
	Score        *big.Int
	Disqualified string // non-empty ⇒ excluded from winner selection, reason recorded
}

// Autopilot runs the tick loop of §4.8.
type Autopilot struct {
	book      OrderbookSnapshot
	tip       ChainTip
	filled    driverFilledSource
	drivers   []DriverClient
	sequencer *domain.MonotoneSequencer
	clock     util.Clock
	tick      time.Duration
	deadline  time.Duration
	baseTokens []domain.Token
	surplusCapturingOwners map[common.Address]struct{}
	eip712Domain domain.EIP712Domain // needed to resolve a just-in-time order while rescoring (§9)
	log       *zap.SugaredLogger

	mu       sync.Mutex
	inFlight map[uint64]*domain.InFlightEntry // keyed by auction id
}

// driverFilledSource lets the autopilot seed the same dry-run clearing
// pass the driver already ran, so its rescoring sees identical
// executed amounts (§4.8 step 5 "independently re-derive").
type driverFilledSource interface {
	Filled(ctx context.Context, block uint64, uid domain.OrderUID) (*big.Int, error)
}

// Config bundles Autopilot's construction parameters.
type Config struct {
	Book                   OrderbookSnapshot
	Tip                    ChainTip
	Filled                 driverFilledSource
	Drivers                []DriverClient
	LastAuctionID          uint64
	Clock                  util.Clock
	Tick                   time.Duration
	Deadline               time.Duration
	BaseTokens             []domain.Token
	SurplusCapturingOwners map[common.Address]struct{}
	EIP712Domain           domain.EIP712Domain
	Log                    *zap.SugaredLogger
}

func New(cfg Config) *Autopilot {
	clock := cfg.Clock
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Autopilot{
		book:                   cfg.Book,
		tip:                    cfg.Tip,
		filled:                 cfg.Filled,
		drivers:                cfg.Drivers,
		sequencer:              domain.NewMonotoneSequencer(cfg.LastAuctionID),
		clock:                  clock,
		tick:                   cfg.Tick,
		deadline:               cfg.Deadline,
		baseTokens:             cfg.BaseTokens,
		surplusCapturingOwners: cfg.SurplusCapturingOwners,
		eip712Domain:           cfg.EIP712Domain,
		log:                    cfg.Log,
		inFlight:               make(map[uint64]*domain.InFlightEntry),
	}
}

// Run drives the tick loop until ctx is cancelled (§4.8 "period:
// configured tick").
func (a *Autopilot) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.clock.After(a.tick):
			if err := a.RunOnce(ctx); err != nil {
				a.logf("tick_failed", "error", err.Error())
			}
		}
	}
}

// RunOnce executes one full §4.8 round: snapshot, fan out, select a
// winner, instruct it to execute, track it in flight.
func (a *Autopilot) RunOnce(ctx context.Context) error {
	auction, err := a.buildAuction(ctx)
	if err != nil {
		return fmt.Errorf("autopilot: build auction: %w", err)
	}
	if len(auction.Orders) == 0 {
		return nil // nothing to auction this tick
	}

	dctx, cancel := context.WithTimeout(ctx, a.deadline)
	defer cancel()

	candidates := a.collect(dctx, auction)
	winner := a.selectWinner(auction, candidates)
	if winner == nil {
		a.logf("no_winner", "auction_id", auction.ID)
		return nil
	}

	driver := a.driverByName(winner.Driver)
	if driver == nil {
		return fmt.Errorf("autopilot: winner driver %q no longer configured", winner.Driver)
	}

	deadlineBlock := auction.Block + deadlineBlockMargin
	if err := driver.Settle(ctx, winner.Solution.SolutionID, deadlineBlock); err != nil {
		a.logf("settle_dispatch_failed", "auction_id", auction.ID, "driver", winner.Driver, "error", err.Error())
		return err
	}

	entry := &domain.InFlightEntry{
		AuctionID:     auction.ID,
		Solver:        winner.Solution.Solution.Solver,
		DeadlineBlock: deadlineBlock,
		SubmittedAt:   a.clock.Now(),
	}
	for _, t := range winner.Solution.Solution.Trades {
		entry.OrderUIDs = append(entry.OrderUIDs, t.OrderUID)
	}

	a.mu.Lock()
	a.inFlight[auction.ID] = entry
	a.mu.Unlock()

	a.logf("winner_selected", "auction_id", auction.ID, "driver", winner.Driver, "solver", entry.Solver.Hex(), "score", winner.Score.String())
	return nil
}

// deadlineBlockMargin is how many blocks past the auction's snapshot
// block a winning settlement is still allowed to land (§4.7's submitter
// treats this as its deadlineBlock).
const deadlineBlockMargin = 3

func (a *Autopilot) driverByName(name string) DriverClient {
	for _, d := range a.drivers {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// buildAuction snapshots open orders and prices, excludes anything
// already in flight, and assigns a fresh monotone id (§4.8 steps 1-2).
func (a *Autopilot) buildAuction(ctx context.Context) (*domain.Auction, error) {
	orders, err := a.book.OpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot open orders: %w", err)
	}

	excluded := a.excludedUIDs()
	kept := orders[:0:0]
	for _, o := range orders {
		if _, skip := excluded[o.UID]; skip {
			continue
		}
		kept = append(kept, o)
	}

	tokens := a.tokenSet(kept)
	prices, err := a.book.NativePrices(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("snapshot native prices: %w", err)
	}

	block, ts, err := a.tip.Tip(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain tip: %w", err)
	}

	return &domain.Auction{
		ID:                     a.sequencer.Next(),
		Block:                  block,
		BlockTimestamp:         ts,
		Orders:                 kept,
		Tokens:                 tokens,
		NativePrices:           prices,
		Deadline:               a.clock.Now().Add(a.deadline),
		SurplusCapturingOwners: a.surplusCapturingOwners,
	}, nil
}

func (a *Autopilot) excludedUIDs() map[domain.OrderUID]struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[domain.OrderUID]struct{})
	for _, entry := range a.inFlight {
		for _, uid := range entry.OrderUIDs {
			out[uid] = struct{}{}
		}
	}
	return out
}

func (a *Autopilot) tokenSet(orders []domain.AuctionOrder) []domain.Token {
	seen := make(map[domain.Token]struct{})
	tokens := make([]domain.Token, 0, len(a.baseTokens))
	for _, t := range a.baseTokens {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			tokens = append(tokens, t)
		}
	}
	for _, o := range orders {
		for _, t := range [2]domain.Token{o.Order.SellToken, o.Order.BuyToken} {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				tokens = append(tokens, t)
			}
		}
	}
	return tokens
}

// collect fans the auction out to every configured driver in parallel
// and independently rescoring each response (§4.8 steps 3-5).
func (a *Autopilot) collect(ctx context.Context, auction *domain.Auction) []Candidate {
	results := make([][]Candidate, len(a.drivers))

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range a.drivers {
		i, d := i, d
		g.Go(func() error {
			solutions, err := d.Solve(gctx, auction)
			if err != nil {
				a.logf("driver_solve_failed", "auction_id", auction.ID, "driver", d.Name(), "error", err.Error())
				return nil // a slow/erroring driver just contributes nothing this tick
			}
			cs := make([]Candidate, 0, len(solutions))
			for _, sol := range solutions {
				cs = append(cs, a.rescoreOne(auction, d.Name(), sol))
			}
			results[i] = cs
			return nil
		})
	}
	_ = g.Wait() // errors are per-driver and already logged; never abort the round

	all := make([]Candidate, 0)
	for _, cs := range results {
		all = append(all, cs...)
	}
	return disqualifyDuplicateSolvers(all)
}

// rescoreOne independently re-derives a proposal's score from its
// reported trades, clearing prices, and gas (§4.8 step 5). A
// discrepancy against the driver's reported score disqualifies it.
func (a *Autopilot) rescoreOne(auction *domain.Auction, driverName string, sol DriverSolution) Candidate {
	candidate := Candidate{Driver: driverName, Solution: sol}

	reg := domain.NewInMemoryFilledRegister()
	if a.filled != nil {
		for _, t := range sol.Solution.Trades {
			cur, err := a.filled.Filled(context.Background(), auction.Block, t.OrderUID)
			if err == nil {
				reg.Seed(t.OrderUID, cur)
			}
		}
	}

	executed, err := clearing.NewEngine(reg, a.eip712Domain).Process(auction.BlockTimestamp, auction, sol.Solution)
	if err != nil {
		candidate.Disqualified = fmt.Sprintf("rescore: %v", err)
		return candidate
	}

	gas := scoring.GasCost{GasUsed: sol.Solution.Gas, GasPrice: auction.EffectiveGasPrice}
	score, err := scoring.Score(auction, executed, gas)
	if err != nil {
		candidate.Disqualified = fmt.Sprintf("rescore: %v", err)
		return candidate
	}

	if sol.Solution.Score != nil && score.Cmp(sol.Solution.Score) != 0 {
		candidate.Disqualified = fmt.Sprintf("score mismatch: reported %s, derived %s", sol.Solution.Score.String(), score.String())
		return candidate
	}

	candidate.Score = score
	return candidate
}

// disqualifyDuplicateSolvers enforces §4.8's "two drivers propose using
// the same solver address ⇒ pick one, disqualify the other" rule,
// keeping the higher-scored of the pair (ties broken by driver name for
// determinism — never by wall-clock arrival order).
func disqualifyDuplicateSolvers(candidates []Candidate) []Candidate {
	bestBySolver := make(map[common.Address]int) // solver -> index of the current best in candidates
	for i, c := range candidates {
		if c.Disqualified != "" || c.Score == nil {
			continue
		}
		solver := c.Solution.Solution.Solver
		bestIdx, seen := bestBySolver[solver]
		if !seen {
			bestBySolver[solver] = i
			continue
		}
		if c.Score.Cmp(candidates[bestIdx].Score) > 0 ||
			(c.Score.Cmp(candidates[bestIdx].Score) == 0 && c.Driver < candidates[bestIdx].Driver) {
			candidates[bestIdx].Disqualified = "duplicate solver address, lower-scored"
			bestBySolver[solver] = i
		} else {
			candidates[i].Disqualified = "duplicate solver address, lower-scored"
		}
	}
	return candidates
}

// selectWinner picks the highest-scored, non-disqualified candidate,
// using the same tiebreak the driver itself applies (§4.5).
func (a *Autopilot) selectWinner(auction *domain.Auction, candidates []Candidate) *Candidate {
	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.Disqualified != "" || c.Score == nil {
			if c.Disqualified != "" {
				a.logf("candidate_disqualified", "auction_id", auction.ID, "driver", c.Driver, "reason", c.Disqualified)
			}
			continue
		}
		if best == nil || scoring.TieBreak(c.Score, best.Score, c.Solution.Solution.Solver, best.Solution.Solution.Solver) {
			best = c
		}
	}
	return best
}

func (a *Autopilot) logf(event string, kv ...interface{}) {
	if a.log == nil {
		return
	}
	a.log.Infow(event, kv...)
}
