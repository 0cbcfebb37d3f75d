package autopilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/domain"
)

// HTTPDriverClient talks to one driver's JSON API (§6) over a plain
// net/http client — there is no third-party HTTP client anywhere in
// the pack (the same gap noted for pkg/solverengine's HTTPEngine), so
// this stays on net/http rather than inventing an unrelated
// dependency.
type HTTPDriverClient struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewHTTPDriverClient(name, baseURL string, client *http.Client) *HTTPDriverClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDriverClient{name: name, baseURL: baseURL, client: client}
}

func (c *HTTPDriverClient) Name() string { return c.name }

type solveRequest struct {
	ID                     uint64                     `json:"id"`
	Tokens                 []domain.Token             `json:"tokens"`
	Orders                 []domain.AuctionOrder      `json:"orders"`
	Deadline               string                     `json:"deadline"`
	EffectiveGasPrice      string                     `json:"effective_gas_price"`
	SurplusCapturingOwners []common.Address           `json:"surplus_capturing_owners"`
}

type solveResponseWire struct {
	Solutions []solutionWire `json:"solutions"`
}

type solutionWire struct {
	ID     string                    `json:"id"`
	Trades []domain.Trade            `json:"trades"`
	Prices map[domain.Token]*big.Int `json:"prices"`
	Solver common.Address            `json:"solver"`
	Gas    uint64                    `json:"gas"`
	Score  *big.Int                  `json:"score"`
}

// Solve POSTs the auction to this driver and returns every solution it
// reported (§6 POST /solve). A transport or decode failure is reported
// to the caller, which treats this driver as contributing nothing this
// round rather than aborting the whole auction.
func (c *HTTPDriverClient) Solve(ctx context.Context, auction *domain.Auction) ([]DriverSolution, error) {
	owners := make([]common.Address, 0, len(auction.SurplusCapturingOwners))
	for owner := range auction.SurplusCapturingOwners {
		owners = append(owners, owner)
	}
	gasPrice := "0"
	if auction.EffectiveGasPrice != nil {
		gasPrice = auction.EffectiveGasPrice.String()
	}

	reqBody := solveRequest{
		ID:                     auction.ID,
		Tokens:                 auction.Tokens,
		Orders:                 auction.Orders,
		Deadline:               auction.Deadline.Format(deadlineLayout),
		EffectiveGasPrice:      gasPrice,
		SurplusCapturingOwners: owners,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return nil, fmt.Errorf("autopilot: encode /solve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/solve", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("autopilot: /solve request to %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("autopilot: /solve on %s returned %s", c.name, resp.Status)
	}

	var wire solveResponseWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("autopilot: decode /solve response from %s: %w", c.name, err)
	}

	out := make([]DriverSolution, 0, len(wire.Solutions))
	for _, s := range wire.Solutions {
		out = append(out, DriverSolution{
			SolutionID: s.ID,
			Solution: &domain.Solution{
				AuctionID:      auction.ID,
				Trades:         s.Trades,
				ClearingPrices: s.Prices,
				Solver:         s.Solver,
				Gas:            s.Gas,
				Score:          s.Score,
			},
		})
	}
	return out, nil
}

// Settle POSTs /settle/{solution_id} to instruct the winning driver to
// submit on-chain (§6, §4.8 step 6).
func (c *HTTPDriverClient) Settle(ctx context.Context, solutionID string, deadlineBlock uint64) error {
	body := map[string]uint64{"deadline_block": deadlineBlock}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/settle/"+solutionID, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("autopilot: /settle request to %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("autopilot: /settle on %s returned %s", c.name, resp.Status)
	}
	return nil
}

const deadlineLayout = "2006-01-02T15:04:05Z07:00"
