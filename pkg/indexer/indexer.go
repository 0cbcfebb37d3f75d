// Package indexer implements the event indexer of §2/§6: observing
// on-chain Settlement, Trade, OrderInvalidated, and PreSignature events
// and reconciling them with auction outcomes — advancing the
// FilledAmount register from confirmed chain state (never from
// simulation, §5) and retiring autopilot's InFlight entries.
package indexer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/cowbatch/settlement/pkg/domain"
)

// TradeEvent mirrors the settlement contract's Trade event.
type TradeEvent struct {
	Owner       common.Address
	OrderUID    domain.OrderUID
	SellAmount  *big.Int
	BuyAmount   *big.Int
	FeeAmount   *big.Int
	Block       uint64
	LogIndex    uint
}

// SettlementEvent mirrors the contract's Settlement event, emitted
// once per settle() call.
type SettlementEvent struct {
	Solver   common.Address
	TxHash   common.Hash
	TxNonce  uint64
	Block    uint64
	LogIndex uint
}

// OrderInvalidatedEvent mirrors the contract's OrderInvalidated event.
type OrderInvalidatedEvent struct {
	Owner    common.Address
	OrderUID domain.OrderUID
	Block    uint64
	LogIndex uint
}

// PreSignatureEvent mirrors the contract's PreSignature event.
type PreSignatureEvent struct {
	Owner    common.Address
	OrderUID domain.OrderUID
	Signed   bool
	Block    uint64
	LogIndex uint
}

// Log is the decoded event bundle for one observed block range. Log
// decoding itself (topic matching, ABI unpacking) is an RPC-adjacent
// concern left to the implementation of LogSource, the same boundary
// sigverify.ChainReader draws around contract calls.
type Log struct {
	Trades             []TradeEvent
	Settlements        []SettlementEvent
	OrderInvalidations []OrderInvalidatedEvent
	PreSignatures      []PreSignatureEvent
}

// LogSource fetches decoded settlement-contract events for a half-open
// block range [from, to).
type LogSource interface {
	FetchLogs(ctx context.Context, from, to uint64) (Log, error)
}

// SettlementObserver is notified when a Settlement event is reconciled,
// so autopilot can retire the matching InFlight entry (§4.8 step 7).
// Implemented by *autopilot.Autopilot; kept as a narrow interface here
// to avoid pkg/indexer depending on pkg/autopilot's full surface.
type SettlementObserver interface {
	SettlementObserved(auctionID uint64, solver common.Address)
}

// Indexer walks the chain forward from a persisted cursor, updating
// the durable FilledAmount register and reconciling settlements.
type Indexer struct {
	logs     LogSource
	filled   domain.FilledRegister
	cursor   Cursor
	observer SettlementObserver
	// auctionOf resolves which auction a settling solver/nonce pair
	// belongs to, so SettlementObserved can be called with the right
	// auction id; owned by the caller (autopilot tracks this mapping
	// itself via its InFlight set, so this is deliberately a callback
	// rather than state duplicated here).
	auctionOf func(solver common.Address, nonce uint64) (auctionID uint64, ok bool)
	// kindOf resolves an order's Kind so applyTrade can pick the correct
	// cap-side amount: the Trade event itself carries both sellAmount
	// and buyAmount non-zero for virtually every real trade, regardless
	// of which side is the order's own fill-or-kill/partial cap side
	// (§3 invariant filled[uid] <= cap(uid)). When nil (no order source
	// configured), applyTrade falls back to the non-zero heuristic,
	// which is only correct for Sell orders.
	kindOf func(uid domain.OrderUID) (domain.Kind, bool)
	log    *zap.SugaredLogger
}

// Cursor persists the last fully-processed block so a restart doesn't
// reprocess the chain from genesis.
type Cursor interface {
	LastBlock() (uint64, error)
	SaveLastBlock(block uint64) error
}

func New(logs LogSource, filled domain.FilledRegister, cursor Cursor, observer SettlementObserver, auctionOf func(common.Address, uint64) (uint64, bool), log *zap.SugaredLogger) *Indexer {
	return &Indexer{logs: logs, filled: filled, cursor: cursor, observer: observer, auctionOf: auctionOf, log: log}
}

// SetKindSource attaches the order-Kind lookup collaborator after
// construction, mirroring SetSubmitter's post-construction wiring
// elsewhere in this module — an order source (e.g. an orderbook
// snapshot) is optional and often not available to a standalone
// indexer process.
func (idx *Indexer) SetKindSource(kindOf func(uid domain.OrderUID) (domain.Kind, bool)) {
	idx.kindOf = kindOf
}

// Advance processes every block up to and including head, starting
// just after the persisted cursor.
func (idx *Indexer) Advance(ctx context.Context, head uint64) error {
	from, err := idx.cursor.LastBlock()
	if err != nil {
		return fmt.Errorf("indexer: load cursor: %w", err)
	}
	from++ // resume after the last processed block

	if from > head {
		return nil
	}

	logBundle, err := idx.logs.FetchLogs(ctx, from, head+1)
	if err != nil {
		return fmt.Errorf("indexer: fetch logs [%d,%d]: %w", from, head, err)
	}

	idx.reconcile(logBundle)

	if err := idx.cursor.SaveLastBlock(head); err != nil {
		return fmt.Errorf("indexer: save cursor: %w", err)
	}
	return nil
}

func (idx *Indexer) reconcile(l Log) {
	for _, t := range l.Trades {
		idx.applyTrade(t)
	}
	for _, inv := range l.OrderInvalidations {
		idx.filled.Invalidate(inv.OrderUID)
		idx.logf("order_invalidated", "order_uid", inv.OrderUID.Hex(), "owner", inv.Owner.Hex())
	}
	for _, s := range l.Settlements {
		idx.applySettlement(s)
	}
	for _, p := range l.PreSignatures {
		idx.logf("presignature_observed", "order_uid", p.OrderUID.Hex(), "owner", p.Owner.Hex(), "signed", p.Signed)
	}
}

// applyTrade advances the FilledAmount register by the trade's
// cap-side amount. §5: this is the only path that ever mutates the
// register — never simulation.
func (idx *Indexer) applyTrade(t TradeEvent) {
	delta := idx.capSideAmount(t)
	if _, err := idx.filled.Add(t.OrderUID, delta); err != nil {
		idx.logf("filled_register_error", "order_uid", t.OrderUID.Hex(), "error", err.Error())
		return
	}
	idx.logf("trade_observed", "order_uid", t.OrderUID.Hex(), "owner", t.Owner.Hex(), "block", t.Block)
}

// capSideAmount picks the Trade event's cap-side executed amount: the
// side the FilledAmount register (and cap(uid)) is denominated in —
// sellAmount for a Sell order, buyAmount for a Buy order (§3). Both
// amounts are real, non-zero numbers on a Trade event for virtually
// any real trade, so selecting by "whichever is non-zero" always picks
// SellAmount; kindOf is the only reliable way to pick correctly.
func (idx *Indexer) capSideAmount(t TradeEvent) *big.Int {
	if idx.kindOf != nil {
		if kind, ok := idx.kindOf(t.OrderUID); ok {
			if kind == domain.Buy {
				return t.BuyAmount
			}
			return t.SellAmount
		}
	}
	// Best-effort fallback with no order source configured: correct
	// only for Sell orders.
	if t.SellAmount != nil && t.SellAmount.Sign() > 0 {
		return t.SellAmount
	}
	return t.BuyAmount
}

func (idx *Indexer) applySettlement(s SettlementEvent) {
	idx.logf("settlement_observed", "solver", s.Solver.Hex(), "tx_hash", s.TxHash.Hex(), "nonce", s.TxNonce, "block", s.Block)
	if idx.observer == nil || idx.auctionOf == nil {
		return
	}
	auctionID, ok := idx.auctionOf(s.Solver, s.TxNonce)
	if !ok {
		return
	}
	idx.observer.SettlementObserved(auctionID, s.Solver)
}

func (idx *Indexer) logf(event string, kv ...interface{}) {
	if idx.log == nil {
		return
	}
	idx.log.Infow(event, kv...)
}
