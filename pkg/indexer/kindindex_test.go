package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/cowbatch/settlement/pkg/domain"
)

type fakeOrderSource struct {
	orders []domain.AuctionOrder
	calls  int
}

func (f *fakeOrderSource) OpenOrders(context.Context) ([]domain.AuctionOrder, error) {
	f.calls++
	return f.orders, nil
}

func TestKindIndex_LookupHitsAfterRefresh(t *testing.T) {
	var uid domain.OrderUID
	uid[0] = 1

	source := &fakeOrderSource{orders: []domain.AuctionOrder{
		{UID: uid, Order: domain.Order{Kind: domain.Buy}},
	}}
	idx := NewKindIndex(source, time.Hour, nil)

	kind, ok := idx.Lookup(context.Background(), uid)
	if !ok {
		t.Fatal("expected a hit after the first refresh")
	}
	if kind != domain.Buy {
		t.Fatalf("expected Buy, got %v", kind)
	}
}

func TestKindIndex_MissForUnknownUID(t *testing.T) {
	source := &fakeOrderSource{}
	idx := NewKindIndex(source, time.Hour, nil)

	var unknown domain.OrderUID
	unknown[0] = 9
	if _, ok := idx.Lookup(context.Background(), unknown); ok {
		t.Fatal("expected a miss for a uid absent from the order source")
	}
}

func TestKindIndex_DoesNotRefreshWithinTTL(t *testing.T) {
	var uid domain.OrderUID
	uid[0] = 2

	source := &fakeOrderSource{orders: []domain.AuctionOrder{
		{UID: uid, Order: domain.Order{Kind: domain.Sell}},
	}}
	idx := NewKindIndex(source, time.Hour, nil)

	idx.Lookup(context.Background(), uid)
	idx.Lookup(context.Background(), uid)

	if source.calls != 1 {
		t.Fatalf("expected exactly 1 refresh within the ttl window, got %d", source.calls)
	}
}
