package solverengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cowbatch/settlement/pkg/domain"
)

// HTTPEngine calls an external solver process's /solve endpoint (§6
// solver-engine JSON API) — the driver's own JSON codec
// (domain.OrderJSON / Order.MarshalJSON) round-trips the auction
// exactly as the driver's HTTP API does for its callers, so an
// external solver sees the same wire shape either side of the
// boundary.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

func NewHTTPEngine(baseURL string, client *http.Client) *HTTPEngine {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPEngine{baseURL: baseURL, client: client}
}

type solveRequest struct {
	Auction *domain.Auction `json:"auction"`
}

type solveResponse struct {
	Solutions []*domain.Solution `json:"solutions"`
}

func (e *HTTPEngine) Solve(ctx context.Context, auction *domain.Auction) ([]*domain.Solution, error) {
	body, err := json.Marshal(solveRequest{Auction: auction})
	if err != nil {
		return nil, fmt.Errorf("solverengine: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/solve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("solverengine: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solverengine: request to %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solverengine: %s returned status %d", e.baseURL, resp.StatusCode)
	}

	var out solveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("solverengine: decode response: %w", err)
	}
	return out.Solutions, nil
}
