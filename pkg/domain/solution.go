package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Trade is a proposed execution of one order, indexed into the
// solution's token list (§3).
type Trade struct {
	OrderUID       OrderUID
	SellTokenIndex uint16
	BuyTokenIndex  uint16
	ExecutedAmount *big.Int // sell-amount (Sell) or buy-amount (Buy) side; ignored by the contract for fill-or-kill but still encoded

	// Order carries a solver-injected order's full body when OrderUID
	// isn't a member of the auction's published order set — a
	// just-in-time order (§9: eligibility is decided by owner, not UID
	// membership, so clearing must still be able to resolve one).
	// Auction.ResolveOrder is the only thing that should ever read it.
	Order *Order
}

// Interaction is an arbitrary external call executed as part of
// settlement.
type Interaction struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

// Interactions groups the three ordered phases of a settlement call.
type Interactions struct {
	Pre   []Interaction
	Intra []Interaction
	Post  []Interaction
}

// Solution is a solver's proposal for one auction.
type Solution struct {
	ID              uint64
	AuctionID       uint64
	Trades          []Trade
	ClearingPrices  map[Token]*big.Int
	Interactions    Interactions
	Solver          common.Address
	Gas             uint64
	Score           *big.Int
}

// TradedTokens returns the set of tokens referenced by at least one
// trade's clearing price requirement (§4.2 limit-price check, §4.3
// encoding rule). The encoder does not call it; it indexes the
// solution's ClearingPrices keys directly.
func (s *Solution) TradedTokens(orderOf func(OrderUID) (Order, bool)) map[Token]struct{} {
	out := make(map[Token]struct{})
	for _, t := range s.Trades {
		o, ok := orderOf(t.OrderUID)
		if !ok {
			continue
		}
		out[o.SellToken] = struct{}{}
		out[o.BuyToken] = struct{}{}
	}
	return out
}
