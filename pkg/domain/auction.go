package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Auction is created by autopilot; its lifetime is one competition
// round. It is never mutated after publication (§3).
type Auction struct {
	ID                     uint64
	Block                  uint64
	BlockTimestamp         uint32 // unix seconds of Block, used to check order expiry (§4.2 step 1)
	Orders                 []AuctionOrder
	Tokens                 []Token
	NativePrices           map[Token]*big.Rat // atoms-of-native per atom-of-token
	Deadline               time.Time
	SurplusCapturingOwners map[common.Address]struct{}
	EffectiveGasPrice      *big.Int // wei per gas unit, used to price simulated gas into the score (§4.5, §6 "effective_gas_price")
}

// AuctionOrder pairs an Order with the owner address that signed it —
// the auction snapshot already carries the recovered owner so drivers
// never need to re-derive it from the signature to know UID membership.
type AuctionOrder struct {
	UID   OrderUID
	Owner common.Address
	Order Order
}

// OrderByUID looks up an order within the auction's order set.
func (a *Auction) OrderByUID(uid OrderUID) (AuctionOrder, bool) {
	for _, o := range a.Orders {
		if o.UID == uid {
			return o, true
		}
	}
	return AuctionOrder{}, false
}

// ResolveOrder resolves the order a trade references, admitting a
// just-in-time order the trade carries inline when its UID isn't in
// the auction's published order set (§9's resolved open question:
// "only (owner in auction.orders OR owner in surplus_capturing_owners)
// contributes, regardless of UID membership"). The UID's embedded
// owner and struct-hash components must match the inline order
// exactly — sigverify's signature check against that same owner is
// what actually proves the order is genuine, the same trust boundary
// an auction-listed order already crosses before it ever reaches here.
func (a *Auction) ResolveOrder(d EIP712Domain, t Trade) (AuctionOrder, error) {
	if ao, ok := a.OrderByUID(t.OrderUID); ok {
		return ao, nil
	}
	if t.Order == nil {
		return AuctionOrder{}, NewValidationError(ReasonUnknownOrder, t.OrderUID.Hex())
	}

	owner := t.OrderUID.Owner()
	expected, err := DeriveUID(d, owner, t.Order)
	if err != nil {
		return AuctionOrder{}, fmt.Errorf("domain: derive uid for inline order: %w", err)
	}
	if expected != t.OrderUID {
		return AuctionOrder{}, NewValidationError(ReasonUnknownOrder, t.OrderUID.Hex())
	}
	if !a.IsSurplusCapturing(owner) {
		return AuctionOrder{}, NewValidationError(ReasonUnknownOrder, t.OrderUID.Hex())
	}
	return AuctionOrder{UID: t.OrderUID, Owner: owner, Order: *t.Order}, nil
}

// HasToken reports whether the auction's price set knows about token t.
func (a *Auction) HasToken(t Token) bool {
	_, ok := a.NativePrices[t]
	return ok
}

// IsSurplusCapturing reports whether owner's trades count toward the
// score even if the order was injected by the solver (§4.5 eligibility).
func (a *Auction) IsSurplusCapturing(owner common.Address) bool {
	_, ok := a.SurplusCapturingOwners[owner]
	return ok
}

// Validate checks the structural invariants a freshly-built auction
// must satisfy before being handed to drivers.
func (a *Auction) Validate() error {
	if a.NativePrices == nil {
		return fmt.Errorf("domain: auction %d has no native prices", a.ID)
	}
	for _, t := range a.Tokens {
		if _, ok := a.NativePrices[t]; !ok {
			return fmt.Errorf("domain: auction %d missing native price for token %s", a.ID, t.Hex())
		}
	}
	return nil
}

// MonotoneSequencer assigns strictly increasing auction ids (§3 invariant
// id_{n+1} > id_n). It is the one piece of auction-identity state and is
// owned explicitly by whoever builds auctions (autopilot), never a
// package-level global.
type MonotoneSequencer struct {
	last uint64
}

// NewMonotoneSequencer resumes numbering after the given last-seen id
// (0 for a fresh deployment).
func NewMonotoneSequencer(lastSeen uint64) *MonotoneSequencer {
	return &MonotoneSequencer{last: lastSeen}
}

func (s *MonotoneSequencer) Next() uint64 {
	s.last++
	return s.last
}
