// Package scoring implements §4.5: a solution's score, the quantity
// autopilot uses to pick a winner among competing solver proposals.
package scoring

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/clearing"
	"github.com/cowbatch/settlement/pkg/domain"
)

// GasCost is what the simulator reports for one solution: total gas
// units consumed and the gas price it was simulated at.
type GasCost struct {
	GasUsed  uint64
	GasPrice *big.Int
}

// Score computes a solution's total surplus in the chain's native
// token, given the clearing engine's executed trades for it and its
// simulated gas cost. Negative net scores are clamped to zero — the
// solution stays valid, it simply cannot win (§4.5).
func Score(auction *domain.Auction, executed []clearing.ExecutedTrade, gas GasCost) (*big.Int, error) {
	total := new(big.Rat)

	for _, et := range executed {
		if !eligible(auction, et.Owner, et.UID) {
			continue
		}

		surplusToken, surplusAmount := surplus(et.Order, et)
		if surplusAmount.Sign() <= 0 {
			continue
		}

		price, ok := auction.NativePrices[surplusToken]
		if !ok {
			return nil, domain.NewValidationError(domain.ReasonUnknownToken, surplusToken.Hex())
		}
		contribution := new(big.Rat).Mul(price, new(big.Rat).SetInt(surplusAmount))
		total.Add(total, contribution)
	}

	if gas.GasUsed > 0 && gas.GasPrice != nil {
		gasCostWei := new(big.Int).Mul(new(big.Int).SetUint64(gas.GasUsed), gas.GasPrice)
		nativePrice, ok := auction.NativePrices[domain.NativeToken]
		if !ok {
			nativePrice = big.NewRat(1, 1)
		}
		gasContribution := new(big.Rat).Mul(nativePrice, new(big.Rat).SetInt(gasCostWei))
		total.Sub(total, gasContribution)
	}

	if total.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	// Floor to an integer atom count — surplus is denominated in the
	// smallest unit of the native token, which has no fractional atoms.
	num, den := total.Num(), total.Denom()
	return new(big.Int).Quo(num, den), nil
}

// eligible reports whether a trade's surplus counts toward the score:
// its owner must be in the auction's order set OR the surplus-
// capturing allow-list — resolving spec.md §9's open question by OR-ing
// rather than requiring both (a JIT order from a surplus-capturing
// owner still contributes even though its UID was never in the
// auction's published order set).
func eligible(auction *domain.Auction, owner common.Address, uid domain.OrderUID) bool {
	if _, ok := auction.OrderByUID(uid); ok {
		return true
	}
	return auction.IsSurplusCapturing(owner)
}

// surplus computes the surplus token and amount for one executed
// trade, per §4.5's Sell/Buy formulas. Both floor to zero rather than
// going negative — a solver that clears exactly at the limit price
// earns no surplus, not a negative one.
func surplus(o domain.Order, et clearing.ExecutedTrade) (domain.Token, *big.Int) {
	switch o.Kind {
	case domain.Sell:
		// surplus = executed_buy - executed_sell * buy_amount / sell_amount
		reference := new(big.Int).Mul(et.ExecutedSell, o.BuyAmount)
		reference.Quo(reference, o.SellAmount)
		amt := new(big.Int).Sub(et.ExecutedBuy, reference)
		if amt.Sign() < 0 {
			amt = big.NewInt(0)
		}
		return o.BuyToken, amt

	default: // Buy
		// surplus = executed_buy * sell_amount / buy_amount - executed_sell
		reference := new(big.Int).Mul(et.ExecutedBuy, o.SellAmount)
		reference.Quo(reference, o.BuyAmount)
		amt := new(big.Int).Sub(reference, et.ExecutedSell)
		if amt.Sign() < 0 {
			amt = big.NewInt(0)
		}
		return o.SellToken, amt
	}
}

// TieBreak reports whether a beats b under the lexicographic
// solver-address tiebreak (§4.5): a wins ties by sorting first.
func TieBreak(scoreA, scoreB *big.Int, solverA, solverB common.Address) bool {
	cmp := scoreA.Cmp(scoreB)
	if cmp != 0 {
		return cmp > 0
	}
	return bytesLess(solverA.Bytes(), solverB.Bytes())
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
