// Package clearing implements §4.2: the off-chain mirror of the
// on-chain settlement contract's per-trade rules. Every invariant here
// exists so that a solution accepted by this engine can never be
// rejected or mis-settled by the real contract.
package clearing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/domain"
)

// Transfer is one leg of a trade's token movement (§4.2 step 4).
type Transfer struct {
	Owner       common.Address // in-transfer owner, zero for out-transfers
	Receiver    common.Address // out-transfer receiver, zero for in-transfers
	Token       domain.Token
	Amount      *big.Int
	Source      domain.BalanceSource      // in-transfer only
	Destination domain.BalanceDestination // out-transfer only
}

// ExecutedTrade is the clearing engine's output for one input Trade:
// the concrete amounts and transfers the settlement call must encode.
type ExecutedTrade struct {
	UID           domain.OrderUID
	Owner         common.Address
	Order         domain.Order // the resolved order, auction-listed or just-in-time (§9)
	ExecutedSell  *big.Int
	ExecutedBuy   *big.Int
	ExecutedFee   *big.Int
	InTransfer    Transfer
	OutTransfer   Transfer
}

// Engine applies uniform clearing prices to a solution's trades,
// exactly mirroring the on-chain settlement contract's per-trade
// arithmetic (§4.2).
type Engine struct {
	filled domain.FilledRegister
	domain domain.EIP712Domain // needed to re-derive a just-in-time order's UID (§9)
}

// NewEngine builds a clearing engine backed by the given FilledAmount
// register. The register is supplied by the caller (driver pre-
// validation uses a dry-run in-memory register seeded from chain
// state; nothing here owns global state — §9).
func NewEngine(filled domain.FilledRegister, eip712Domain domain.EIP712Domain) *Engine {
	return &Engine{filled: filled, domain: eip712Domain}
}

// Process clears every trade in solution against auction's orders and
// clearing prices at blockTimestamp. It returns one ExecutedTrade per
// input Trade, in the same order, or the first error encountered
// (§7: the driver drops the whole proposal on any clearing failure —
// a solution is all-or-nothing at this stage).
func (e *Engine) Process(blockTimestamp uint32, auction *domain.Auction, solution *domain.Solution) ([]ExecutedTrade, error) {
	out := make([]ExecutedTrade, 0, len(solution.Trades))
	for _, t := range solution.Trades {
		executed, err := e.processTrade(blockTimestamp, auction, solution.ClearingPrices, t)
		if err != nil {
			return nil, err
		}
		out = append(out, executed)
	}
	return out, nil
}

func (e *Engine) processTrade(blockTimestamp uint32, auction *domain.Auction, prices map[domain.Token]*big.Int, t domain.Trade) (ExecutedTrade, error) {
	ao, err := auction.ResolveOrder(e.domain, t)
	if err != nil {
		return ExecutedTrade{}, err
	}
	o := ao.Order

	// 1. Validity.
	if o.ValidTo < blockTimestamp {
		return ExecutedTrade{}, &domain.ExpiredError{UID: t.OrderUID}
	}

	pSell, ok := prices[o.SellToken]
	if !ok {
		return ExecutedTrade{}, domain.NewValidationError(domain.ReasonUnknownToken, o.SellToken.Hex())
	}
	pBuy, ok := prices[o.BuyToken]
	if !ok {
		return ExecutedTrade{}, domain.NewValidationError(domain.ReasonUnknownToken, o.BuyToken.Hex())
	}
	if pSell.Sign() <= 0 || pBuy.Sign() <= 0 {
		return ExecutedTrade{}, domain.NewValidationError(domain.ReasonUnknownToken, "non-positive clearing price")
	}

	// 2. Limit price: sellAmount*pSell >= buyAmount*pBuy.
	lhs := new(big.Int).Mul(o.SellAmount, pSell)
	rhs := new(big.Int).Mul(o.BuyAmount, pBuy)
	if lhs.Cmp(rhs) < 0 {
		return ExecutedTrade{}, &domain.LimitViolatedError{UID: t.OrderUID}
	}

	// 3. Executed amounts.
	var executedSell, executedBuy, executedFee *big.Int
	var capSide *big.Int

	switch o.Kind {
	case domain.Sell:
		if o.PartiallyFillable {
			executedSell = new(big.Int).Set(t.ExecutedAmount)
		} else {
			executedSell = new(big.Int).Set(o.SellAmount)
		}
		executedBuy = mulDivCeil(executedSell, pSell, pBuy)
		if o.PartiallyFillable {
			executedFee = mulDiv(o.FeeAmount, executedSell, o.SellAmount)
		} else {
			executedFee = new(big.Int).Set(o.FeeAmount)
		}
		capSide = executedSell

	case domain.Buy:
		if o.PartiallyFillable {
			executedBuy = new(big.Int).Set(t.ExecutedAmount)
		} else {
			executedBuy = new(big.Int).Set(o.BuyAmount)
		}
		executedSell = mulDiv(executedBuy, pBuy, pSell)
		if o.PartiallyFillable {
			executedFee = mulDiv(o.FeeAmount, executedBuy, o.BuyAmount)
		} else {
			executedFee = new(big.Int).Set(o.FeeAmount)
		}
		capSide = executedBuy

	default:
		return ExecutedTrade{}, fmt.Errorf("clearing: unknown order kind %d", o.Kind)
	}

	// Cap check against the FilledAmount register.
	current, err := e.filled.Get(t.OrderUID)
	if err != nil {
		return ExecutedTrade{}, fmt.Errorf("clearing: read filled amount: %w", err)
	}
	if current.Cmp(domain.MaxFilled) == 0 {
		return ExecutedTrade{}, domain.NewValidationError(domain.ReasonOverFill, "order invalidated")
	}
	projected := new(big.Int).Add(current, capSide)
	if projected.Cmp(o.Cap()) > 0 {
		return ExecutedTrade{}, &domain.OverFillError{UID: t.OrderUID, Want: projected.String(), Cap: o.Cap().String()}
	}

	// 4. Transfers.
	owner := ao.Owner
	inTransfer := Transfer{
		Owner:  owner,
		Token:  o.SellToken,
		Amount: new(big.Int).Add(executedSell, executedFee),
		Source: o.SellTokenBalance,
	}
	receiver := o.EffectiveReceiver(owner)
	if o.BuyToken.IsNative() && o.BuyTokenBalance == domain.DestinationInternal {
		return ExecutedTrade{}, domain.NewValidationError(domain.ReasonUnknownToken, "native out-transfer cannot target internal balance")
	}
	outTransfer := Transfer{
		Receiver:    receiver,
		Token:       o.BuyToken,
		Amount:      executedBuy,
		Destination: o.BuyTokenBalance,
	}

	// 5. Commit.
	if _, err := e.filled.Add(t.OrderUID, capSide); err != nil {
		return ExecutedTrade{}, fmt.Errorf("clearing: commit filled amount: %w", err)
	}

	return ExecutedTrade{
		UID:          t.OrderUID,
		Owner:        owner,
		Order:        o,
		ExecutedSell: executedSell,
		ExecutedBuy:  executedBuy,
		ExecutedFee:  executedFee,
		InTransfer:   inTransfer,
		OutTransfer:  outTransfer,
	}, nil
}
