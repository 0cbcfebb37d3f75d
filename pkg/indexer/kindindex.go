package indexer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cowbatch/settlement/pkg/domain"
)

// OrderSource lists currently open orders — satisfied structurally by
// *autopilot.HTTPOrderbook without pkg/indexer importing pkg/autopilot.
type OrderSource interface {
	OpenOrders(ctx context.Context) ([]domain.AuctionOrder, error)
}

// KindIndex caches each order's Kind from periodic OrderSource
// snapshots, so Indexer.applyTrade can pick the correct FilledAmount
// cap side without re-deriving it from the Trade event alone (§3). A
// JIT order never appears in an orderbook snapshot, but it also never
// repeats across settlements often enough to need a hit here — a miss
// just falls back to applyTrade's best-effort heuristic.
type KindIndex struct {
	source OrderSource
	ttl    time.Duration
	log    *zap.SugaredLogger

	mu        sync.RWMutex
	kinds     map[domain.OrderUID]domain.Kind
	refreshed time.Time
}

func NewKindIndex(source OrderSource, ttl time.Duration, log *zap.SugaredLogger) *KindIndex {
	return &KindIndex{source: source, ttl: ttl, log: log, kinds: make(map[domain.OrderUID]domain.Kind)}
}

// Lookup satisfies the Indexer.kindOf callback shape. It refreshes the
// cache from the order source when stale, but never blocks on a
// refresh failure — a stale cache (or a miss) is strictly safer than
// applyTrade falling all the way back to its own heuristic on every
// call, since most orders don't change Kind between refreshes.
func (k *KindIndex) Lookup(ctx context.Context, uid domain.OrderUID) (domain.Kind, bool) {
	k.mu.RLock()
	kind, ok := k.kinds[uid]
	stale := time.Since(k.refreshed) > k.ttl
	k.mu.RUnlock()
	if ok && !stale {
		return kind, true
	}

	if stale {
		if err := k.refresh(ctx); err != nil && k.log != nil {
			k.log.Warnw("kind_index_refresh_failed", "error", err)
		}
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	kind, ok = k.kinds[uid]
	return kind, ok
}

func (k *KindIndex) refresh(ctx context.Context) error {
	orders, err := k.source.OpenOrders(ctx)
	if err != nil {
		return err
	}

	next := make(map[domain.OrderUID]domain.Kind, len(orders))
	for _, ao := range orders {
		next[ao.UID] = ao.Order.Kind
	}

	k.mu.Lock()
	k.kinds = next
	k.refreshed = time.Now()
	k.mu.Unlock()
	return nil
}
