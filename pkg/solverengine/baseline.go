package solverengine

import (
	"context"
	"math/big"

	"github.com/cowbatch/settlement/pkg/domain"
)

// BaselineEngine finds direct CoW matches: pairs of orders on opposite
// sides of the same token pair whose limit prices cross, cleared at
// one order's own limit (the "maker" side earns no surplus; the
// "taker" side earns whatever slack its own limit allows) — the same
// price-time matching shape as a continuous order book's trade-at-
// resting-price rule, applied once per auction instead of per order
// arrival.
//
// It never touches a token pair more than once per auction: once two
// tokens are matched together, neither participates in a second match
// in the same solution, keeping every clearing price internally
// consistent without needing a full multi-token price solve.
type BaselineEngine struct{}

func NewBaselineEngine() *BaselineEngine { return &BaselineEngine{} }

func (e *BaselineEngine) Solve(ctx context.Context, auction *domain.Auction) ([]*domain.Solution, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	type pairOrders struct {
		forward []domain.AuctionOrder // sellToken == a, buyToken == b
		reverse []domain.AuctionOrder // sellToken == b, buyToken == a
	}
	pairs := make(map[[2]domain.Token]*pairOrders)

	keyFor := func(a, b domain.Token) [2]domain.Token {
		if domain.TokenLess(a, b) {
			return [2]domain.Token{a, b}
		}
		return [2]domain.Token{b, a}
	}

	for _, ao := range auction.Orders {
		o := ao.Order
		k := keyFor(o.SellToken, o.BuyToken)
		p, ok := pairs[k]
		if !ok {
			p = &pairOrders{}
			pairs[k] = p
		}
		if o.SellToken == k[0] {
			p.forward = append(p.forward, ao)
		} else {
			p.reverse = append(p.reverse, ao)
		}
	}

	usedToken := make(map[domain.Token]bool)
	var trades []domain.Trade
	clearingPrices := make(map[domain.Token]*big.Int)

	for k, p := range pairs {
		if usedToken[k[0]] || usedToken[k[1]] {
			continue
		}
		match, priceA, priceB := bestMatch(p.forward, p.reverse)
		if match == nil {
			continue
		}

		trades = append(trades,
			domain.Trade{OrderUID: match.fwd.UID, ExecutedAmount: match.fwd.Order.SellAmount},
			domain.Trade{OrderUID: match.rev.UID, ExecutedAmount: match.rev.Order.SellAmount},
		)
		clearingPrices[k[0]] = priceA
		clearingPrices[k[1]] = priceB
		usedToken[k[0]] = true
		usedToken[k[1]] = true
	}

	if len(trades) == 0 {
		return nil, nil
	}

	return []*domain.Solution{{
		AuctionID:      auction.ID,
		Trades:         trades,
		ClearingPrices: clearingPrices,
	}}, nil
}

type matchedPair struct {
	fwd domain.AuctionOrder
	rev domain.AuctionOrder
}

// bestMatch scans every (forward, reverse) pair and returns the one
// whose forward-side limit, taken as the clearing price, the reverse
// side can also satisfy — preferring the pair with the most reverse-
// side slack (the best deal for the taker), a simple deterministic
// tiebreak over an otherwise unordered search.
func bestMatch(forward, reverse []domain.AuctionOrder) (*matchedPair, *big.Int, *big.Int) {
	var best *matchedPair
	var bestPriceA, bestPriceB *big.Int
	var bestSlack *big.Int

	for _, f := range forward {
		// Clearing price taken at f's own limit: price(sellToken) =
		// f.BuyAmount, price(buyToken) = f.SellAmount — f's limit then
		// holds with equality (sellAmount*priceSell == buyAmount*priceBuy).
		priceSell := new(big.Int).Set(f.Order.BuyAmount)
		priceBuy := new(big.Int).Set(f.Order.SellAmount)

		for _, r := range reverse {
			// r sells buyToken for sellToken; its limit requires
			// r.SellAmount*priceBuy >= r.BuyAmount*priceSell (its sell
			// token is priced by priceBuy here, its buy token by priceSell).
			lhs := new(big.Int).Mul(r.Order.SellAmount, priceBuy)
			rhs := new(big.Int).Mul(r.Order.BuyAmount, priceSell)
			if lhs.Cmp(rhs) < 0 {
				continue
			}
			slack := new(big.Int).Sub(lhs, rhs)
			if best == nil || slack.Cmp(bestSlack) > 0 {
				fCopy, rCopy := f, r
				best = &matchedPair{fwd: fCopy, rev: rCopy}
				bestPriceA, bestPriceB = priceSell, priceBuy
				bestSlack = slack
			}
		}
	}

	return best, bestPriceA, bestPriceB
}
