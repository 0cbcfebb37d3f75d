package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/cowbatch/settlement/params"
	"github.com/cowbatch/settlement/pkg/autopilot"
	"github.com/cowbatch/settlement/pkg/domain"
	"github.com/cowbatch/settlement/pkg/util"
)

// zeroFilledSource reports every order as entirely unfilled. A fresh
// auction snapshot only ever admits orders the orderbook still
// considers open, so "nothing executed yet" is always the correct
// rescoring seed; a partially-filled order's remaining amount is
// already reflected in the orderbook's own open-order snapshot.
type zeroFilledSource struct{}

func (zeroFilledSource) Filled(_ context.Context, _ uint64, _ domain.OrderUID) (*big.Int, error) {
	return big.NewInt(0), nil
}

func main() {
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/autopilot.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	if cfg.Autopilot.OrderbookURL == "" {
		log.Fatalf("AUTOPILOT_ORDERBOOK_URL must be set")
	}
	if len(cfg.Autopilot.DriverURLs) == 0 {
		log.Fatalf("AUTOPILOT_DRIVER_URLS must list at least one driver")
	}

	client, err := rpc.Dial(cfg.Chain.NodeURL)
	if err != nil {
		log.Fatalf("dial node: %v", err)
	}

	eip712Domain := domain.SettlementDomain(big.NewInt(cfg.Chain.ID), common.HexToAddress(cfg.Chain.SettlementAddress))

	book := autopilot.NewHTTPOrderbook(cfg.Autopilot.OrderbookURL, nil)
	tip := autopilot.NewRPCChainTip(client)

	drivers := make([]autopilot.DriverClient, len(cfg.Autopilot.DriverURLs))
	for i, driverURL := range cfg.Autopilot.DriverURLs {
		drivers[i] = autopilot.NewHTTPDriverClient(driverURL, driverURL, nil)
	}

	// zeroFilledSource: the rescoring path only needs a FilledAmount
	// seed for orders already partially executed before this auction,
	// and a fresh snapshot only ever admits orders the orderbook still
	// considers open — "nothing executed yet" is the correct seed.
	ap := autopilot.New(autopilot.Config{
		Book:         book,
		Tip:          tip,
		Filled:       zeroFilledSource{},
		Drivers:      drivers,
		Tick:         cfg.Autopilot.Tick,
		Deadline:     cfg.Autopilot.Deadline,
		EIP712Domain: eip712Domain,
		Log:          sugar,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sugar.Infow("autopilot_starting", "tick", cfg.Autopilot.Tick, "deadline", cfg.Autopilot.Deadline, "drivers", cfg.Autopilot.DriverURLs)
	if err := ap.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("autopilot: %v", err)
	}
	sugar.Infow("autopilot_stopped")
}
