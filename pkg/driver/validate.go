package driver

import (
	"context"
	"fmt"

	"github.com/cowbatch/settlement/pkg/domain"
	"github.com/cowbatch/settlement/pkg/sigverify"
)

// validate runs the signature-verification half of §4.6's validation
// gate. Order resolution (UID membership, or a just-in-time order from
// a surplus-capturing owner) is Auction.ResolveOrder's job; the
// remaining checks validate doesn't name (clearing-price coverage, no
// VaultRelayer-targeting interaction, 256-bit amount fit) are enforced
// as a side effect of clearing.Engine.Process and encoding.Encode,
// which validateAndClear always runs immediately after this — a
// proposal never reaches simulation without passing every check.
func (d *Driver) validate(ctx context.Context, auction *domain.Auction, sol *domain.Solution) error {
	seen := make(map[domain.OrderUID]bool, len(sol.Trades))
	for _, t := range sol.Trades {
		if seen[t.OrderUID] {
			continue
		}
		seen[t.OrderUID] = true

		ao, err := auction.ResolveOrder(d.domain, t)
		if err != nil {
			return err
		}

		if err := sigverify.Verify(ctx, d.domain, auction.Block, t.OrderUID, &ao.Order, ao.Owner, d.chain); err != nil {
			return fmt.Errorf("driver: signature re-verification failed for %s: %w", t.OrderUID.Hex(), err)
		}
	}
	return nil
}
