package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/cowbatch/settlement/params"
	"github.com/cowbatch/settlement/pkg/domain"
	"github.com/cowbatch/settlement/pkg/driver"
	"github.com/cowbatch/settlement/pkg/events"
	"github.com/cowbatch/settlement/pkg/indexer"
	"github.com/cowbatch/settlement/pkg/sigverify"
	"github.com/cowbatch/settlement/pkg/simulate"
	"github.com/cowbatch/settlement/pkg/solverengine"
	"github.com/cowbatch/settlement/pkg/solvers"
	"github.com/cowbatch/settlement/pkg/submitter"
	"github.com/cowbatch/settlement/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/driver.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	settlement := common.HexToAddress(cfg.Chain.SettlementAddress)
	vaultRelayer := common.HexToAddress(cfg.Chain.VaultRelayerAddress)
	eip712Domain := domain.SettlementDomain(big.NewInt(cfg.Chain.ID), settlement)

	client, err := rpc.Dial(cfg.Chain.NodeURL)
	if err != nil {
		log.Fatalf("dial node: %v", err)
	}
	simClient, err := rpc.Dial(pick(cfg.Chain.SimulationNodeURL, cfg.Chain.NodeURL))
	if err != nil {
		log.Fatalf("dial simulation node: %v", err)
	}

	chain, err := sigverify.NewRPCChainReader(client, settlement)
	if err != nil {
		log.Fatalf("chain reader: %v", err)
	}
	sim := simulate.NewRPCSimulator(simClient, nil)

	dbPath := os.Getenv("DRIVER_DB_PATH")
	if dbPath == "" {
		dbPath = "data/driver-db"
	}
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	filled := indexer.NewDriverFilledSource(indexer.NewPebbleFilledRegister(db))
	nonceRegistry := solvers.NewRegistry(solvers.NewPebbleStoreFromDB(db))

	var engine solverengine.Engine = solverengine.NewBaselineEngine()
	if engineURL := os.Getenv("SOLVER_ENGINE_URL"); engineURL != "" {
		engine = solverengine.NewHTTPEngine(engineURL, nil)
	}

	d := driver.New(engine, sim, chain, filled, eip712Domain, settlement, vaultRelayer, sugar)

	if len(cfg.Solvers) > 0 {
		keys := make([]string, len(cfg.Solvers))
		for i, acct := range cfg.Solvers {
			keys[i] = acct.PrivateKey
		}
		signer, err := submitter.NewECDSASigner(big.NewInt(cfg.Chain.ID), keys)
		if err != nil {
			log.Fatalf("solver signer: %v", err)
		}

		targets := []submitter.Target{
			submitter.NewTarget("public", submitter.Public, submitter.RPCBroadcaster(client)),
		}
		blocks := submitter.NewRPCBlockWatcher(client, 2*time.Second)
		inclusion := submitter.NewRPCInclusionChecker(client)

		sub := submitter.New(targets, signer, blocks, inclusion, sim, nonceRegistry, settlement, sugar)
		d.SetSubmitter(sub)
	} else {
		sugar.Infow("no_solver_accounts_configured", "note", "driver will simulate but cannot settle")
	}

	hub := events.NewHub(sugar)
	server := driver.NewServer(d, hub, sugar)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		sugar.Infow("shutting_down")
	}()

	sugar.Infow("driver_listening", "addr", cfg.Driver.ListenAddr)
	if err := server.Start(cfg.Driver.ListenAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func pick(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}
