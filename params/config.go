package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Chain names the settlement chain and the RPC endpoints the driver
// and simulator need (§6 "chain id, node URL (primary and
// simulation)").
type Chain struct {
	ID                   int64
	NodeURL              string
	SimulationNodeURL    string // eth_call/debug_traceCall may be routed to a dedicated archive/simulation node
	SettlementAddress    string
	VaultRelayerAddress  string
}

// Driver configures one driver process's JSON API and per-auction
// deadline (§6 "listen address", "driver timeout").
type Driver struct {
	ListenAddr string
	Timeout    time.Duration
}

// Autopilot configures the global tick loop (§6 "auction tick").
type Autopilot struct {
	Tick         time.Duration
	Deadline     time.Duration
	DriverURLs   []string
	OrderbookURL string
}

// SolverAccount is one configured solver's signing identity. PrivateKey
// is deliberately unexported from logging paths: its String()/
// MarshalText implementations never print the key material (§6
// "private key material; must never appear in logs").
type SolverAccount struct {
	Address    string
	PrivateKey string
}

// String and MarshalText both redact PrivateKey, so an accidental
// fmt.Println(account) or an account landing in a zap field never
// leaks it.
func (a SolverAccount) String() string {
	return fmt.Sprintf("SolverAccount{Address: %s, PrivateKey: <redacted>}", a.Address)
}

func (a SolverAccount) MarshalText() ([]byte, error) {
	return []byte(a.Address), nil
}

type Config struct {
	Chain     Chain
	Driver    Driver
	Autopilot Autopilot
	Solvers   []SolverAccount
}

func Default() Config {
	return Config{
		Chain: Chain{
			ID:      1,
			NodeURL: "http://localhost:8545",
		},
		Driver: Driver{
			ListenAddr: ":8080",
			Timeout:    15 * time.Second,
		},
		Autopilot: Autopilot{
			Tick:     5 * time.Second,
			Deadline: 15 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.ID = id
		}
	}
	cfg.Chain.NodeURL = getEnv("CHAIN_NODE_URL", cfg.Chain.NodeURL)
	cfg.Chain.SimulationNodeURL = getEnv("CHAIN_SIMULATION_NODE_URL", cfg.Chain.SimulationNodeURL)
	cfg.Chain.SettlementAddress = getEnv("SETTLEMENT_ADDRESS", cfg.Chain.SettlementAddress)
	cfg.Chain.VaultRelayerAddress = getEnv("VAULT_RELAYER_ADDRESS", cfg.Chain.VaultRelayerAddress)

	cfg.Driver.ListenAddr = getEnv("DRIVER_LISTEN_ADDR", cfg.Driver.ListenAddr)
	if v := os.Getenv("DRIVER_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Driver.Timeout = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("AUTOPILOT_TICK_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Autopilot.Tick = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("AUTOPILOT_DEADLINE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Autopilot.Deadline = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("AUTOPILOT_DRIVER_URLS"); v != "" {
		cfg.Autopilot.DriverURLs = splitNonEmpty(v, ",")
	}
	cfg.Autopilot.OrderbookURL = getEnv("AUTOPILOT_ORDERBOOK_URL", cfg.Autopilot.OrderbookURL)

	if v := os.Getenv("SOLVER_ACCOUNTS"); v != "" {
		// "address1:key1,address2:key2"
		for _, pair := range splitNonEmpty(v, ",") {
			parts := strings.SplitN(pair, ":", 2)
			if len(parts) != 2 {
				continue
			}
			cfg.Solvers = append(cfg.Solvers, SolverAccount{Address: parts[0], PrivateKey: parts[1]})
		}
	}

	return cfg
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
