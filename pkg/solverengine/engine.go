// Package solverengine implements the solver side of §4.6: given an
// auction, propose zero or more Solutions within a deadline. This
// package supplies the Engine capability interface, a baseline
// internal CoW-matching engine, and an HTTP client for external solver
// processes speaking the driver's solver-engine JSON API (§6).
package solverengine

import (
	"context"
	"time"

	"github.com/cowbatch/settlement/pkg/domain"
)

// Engine is the capability the driver invokes once per auction. An
// engine may return zero solutions (nothing to propose) and must
// respect ctx's deadline rather than being killed mid-computation
// (§9 "cancellation vs. panics").
type Engine interface {
	Solve(ctx context.Context, auction *domain.Auction) ([]*domain.Solution, error)
}

// deadlineMargin is subtracted from the auction's deadline before
// handing a context to an engine, so the driver always has time left
// to validate/simulate/score whatever comes back (§4.6 "deadline-aware
// engine calls").
const deadlineMargin = 500 * time.Millisecond

// WithDeadline derives a context bounded by auction.Deadline minus a
// safety margin for the driver's own post-processing.
func WithDeadline(ctx context.Context, auction *domain.Auction) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, auction.Deadline.Add(-deadlineMargin))
}
