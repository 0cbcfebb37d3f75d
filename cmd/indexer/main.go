package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cowbatch/settlement/params"
	"github.com/cowbatch/settlement/pkg/autopilot"
	"github.com/cowbatch/settlement/pkg/domain"
	"github.com/cowbatch/settlement/pkg/indexer"
	"github.com/cowbatch/settlement/pkg/util"
)

// A standalone indexer process: polls for new blocks, decodes
// settlement-contract events, and keeps its own durable cursor and
// FilledAmount register current (§2/§5/§6). Reconciling a Settlement
// event back to the auction that produced it is an in-process concern
// of autopilot (pkg/autopilot.Autopilot satisfies SettlementObserver
// directly); a standalone indexer has no such autopilot to call into,
// so it runs with a nil observer/auctionOf — the durable register
// still advances correctly either way, since that's driven entirely by
// Trade and OrderInvalidated events.
func main() {
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/indexer.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	settlement := common.HexToAddress(cfg.Chain.SettlementAddress)

	client, err := ethclient.Dial(cfg.Chain.NodeURL)
	if err != nil {
		log.Fatalf("dial node: %v", err)
	}

	logSource, err := indexer.NewRPCLogSource(client, settlement)
	if err != nil {
		log.Fatalf("log source: %v", err)
	}

	// A standalone indexer keeps its own pebble database, separate from
	// a driver process's embedded copy (cmd/driver opens its own for a
	// single-process deployment where the driver tracks FilledAmount
	// itself). Centralizing indexing across multiple driver processes
	// means those drivers reading FilledAmount from this process's
	// database over the network instead of a shared on-disk file —
	// that RPC surface isn't wired up yet.
	dbPath := os.Getenv("INDEXER_DB_PATH")
	if dbPath == "" {
		dbPath = "data/indexer-db"
	}
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	cursor := indexer.NewPebbleCursor(db)
	filled := indexer.NewPebbleFilledRegister(db)

	idx := indexer.New(logSource, filled, cursor, nil, nil, sugar)

	// Order Kind (Sell vs Buy) picks the right FilledAmount cap side for
	// each observed Trade event (§3); without an orderbook to ask,
	// applyTrade falls back to a best-effort heuristic that is only
	// correct for Sell orders.
	if orderbookURL := os.Getenv("ORDERBOOK_URL"); orderbookURL != "" {
		book := autopilot.NewHTTPOrderbook(orderbookURL, nil)
		kindIndex := indexer.NewKindIndex(book, 30*time.Second, sugar)
		idx.SetKindSource(func(uid domain.OrderUID) (domain.Kind, bool) {
			return kindIndex.Lookup(context.Background(), uid)
		})
	}

	pollInterval := 5 * time.Second
	if v := os.Getenv("INDEXER_POLL_MS"); v != "" {
		if ms, err := time.ParseDuration(v + "ms"); err == nil {
			pollInterval = ms
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sugar.Infow("indexer_starting", "poll_interval", pollInterval, "settlement", settlement.Hex())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Infow("indexer_stopped")
			return
		case <-ticker.C:
			head, err := client.BlockNumber(ctx)
			if err != nil {
				sugar.Errorw("block_number_failed", "error", err)
				continue
			}
			if err := idx.Advance(ctx, head); err != nil {
				sugar.Errorw("advance_failed", "error", err)
			}
		}
	}
}
