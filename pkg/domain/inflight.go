package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// InFlightEntry tracks a settlement still being submitted, owned
// exclusively by autopilot (§3, §5 "single-writer, many-readers").
type InFlightEntry struct {
	AuctionID     uint64
	Solver        common.Address
	ExpectedNonce uint64
	OrderUIDs     []OrderUID
	DeadlineBlock uint64
	SubmittedAt   time.Time
}

// Contains reports whether uid belongs to this in-flight settlement
// (§4.8 step 1). Autopilot's own snapshot exclusion walks OrderUIDs
// directly rather than calling this.
func (e *InFlightEntry) Contains(uid OrderUID) bool {
	for _, u := range e.OrderUIDs {
		if u == uid {
			return true
		}
	}
	return false
}
