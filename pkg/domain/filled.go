package domain

import (
	"fmt"
	"math/big"
)

// MaxFilled is the sentinel "invalidated" value for the FilledAmount
// register: 2^256 - 1.
var MaxFilled = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// FilledRegister is the process-global Order-UID -> used-amount map of
// §3. Implementations must guarantee the filled amount for a UID never
// decreases and is updated only from on-chain confirmation, never from
// simulation (§5 ordering guarantees). There is deliberately no
// package-level instance of this interface anywhere in the module (§9
// "no hidden statics") — every owner (clearing engine in dry-run mode,
// indexer in confirmation mode) is handed one explicitly at construction.
type FilledRegister interface {
	// Get returns the current filled amount for uid, or zero if unset.
	Get(uid OrderUID) (*big.Int, error)

	// Add increments the filled amount by delta and returns the new
	// total. Implementations must reject a delta that would make the
	// register decrease and must never accept concurrent double-counting
	// for the same uid.
	Add(uid OrderUID, delta *big.Int) (*big.Int, error)

	// Invalidate sets filled[uid] to MaxFilled.
	Invalidate(uid OrderUID) error
}

// InMemoryFilledRegister is a plain map with no locking (it is not safe
// for concurrent use, so each owner drives it from one goroutine), suitable for the
// driver's dry-run pre-validation pass (§4.6 "validation gate") where
// no persistence is required — the driver re-derives the authoritative
// on-chain filled amount fresh for every auction rather than caching it
// across auctions.
type InMemoryFilledRegister struct {
	values map[OrderUID]*big.Int
}

func NewInMemoryFilledRegister() *InMemoryFilledRegister {
	return &InMemoryFilledRegister{values: make(map[OrderUID]*big.Int)}
}

func (r *InMemoryFilledRegister) Get(uid OrderUID) (*big.Int, error) {
	if v, ok := r.values[uid]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (r *InMemoryFilledRegister) Add(uid OrderUID, delta *big.Int) (*big.Int, error) {
	if delta.Sign() < 0 {
		return nil, fmt.Errorf("domain: negative filled delta %s for %s", delta, uid.Hex())
	}
	cur, _ := r.Get(uid)
	next := new(big.Int).Add(cur, delta)
	r.values[uid] = next
	return new(big.Int).Set(next), nil
}

func (r *InMemoryFilledRegister) Invalidate(uid OrderUID) error {
	r.values[uid] = new(big.Int).Set(MaxFilled)
	return nil
}

// Seed pre-populates the register, used by the driver to import the
// authoritative on-chain filled amounts it read for this auction's
// orders before running the clearing engine against them.
func (r *InMemoryFilledRegister) Seed(uid OrderUID, amount *big.Int) {
	r.values[uid] = new(big.Int).Set(amount)
}
