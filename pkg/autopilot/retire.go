package autopilot

import "github.com/ethereum/go-ethereum/common"

// SettlementObserved is called by the indexer when a Settlement event
// matches an in-flight entry's solver (§4.8 step 7 "mark settled and
// retire the entry"). It takes no nonce: the entry is matched by
// auction id and solver address alone, since one solver has at most
// one entry in flight at a time (§5 nonce exclusivity).
func (a *Autopilot) SettlementObserved(auctionID uint64, solver common.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.inFlight[auctionID]
	if !ok || entry.Solver != solver {
		return
	}
	delete(a.inFlight, auctionID)
	a.logf("settlement_retired", "auction_id", auctionID, "solver", solver.Hex(), "outcome", "settled")
}

// RetireExpired drops any in-flight entry whose deadline block has
// passed without a matching Settlement observation (§4.8 step 7 "on
// deadline lapse without inclusion, retire as failed").
func (a *Autopilot) RetireExpired(currentBlock uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, entry := range a.inFlight {
		if currentBlock >= entry.DeadlineBlock {
			delete(a.inFlight, id)
			a.logf("settlement_retired", "auction_id", id, "solver", entry.Solver.Hex(), "outcome", "failed")
		}
	}
}

// InFlightCount reports how many settlements autopilot currently
// considers unresolved, for health/metrics surfaces.
func (a *Autopilot) InFlightCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inFlight)
}
