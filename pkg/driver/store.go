package driver

import (
	"sync"

	"github.com/google/uuid"
)

// solutionStore holds the winning proposal of each resolved auction,
// addressable by the solution id handed back in the /solve response so
// a later /reveal or /settle call (possibly re-delivered) resolves to
// the exact same proposal (§6 "idempotent by (auction id, solution id)").
type solutionStore struct {
	mu        sync.Mutex
	byID      map[string]*Proposal
	byAuction map[uint64]string
}

func newSolutionStore() *solutionStore {
	return &solutionStore{
		byID:      make(map[string]*Proposal),
		byAuction: make(map[uint64]string),
	}
}

// put assigns a solution id to prop (or reuses the one already
// assigned to its auction) and returns it.
func (s *solutionStore) put(auctionID uint64, prop *Proposal) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byAuction[auctionID]; ok {
		s.byID[id] = prop
		return id
	}

	id := uuid.NewString()
	s.byID[id] = prop
	s.byAuction[auctionID] = id
	return id
}

func (s *solutionStore) get(id string) (*Proposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	return p, ok
}
