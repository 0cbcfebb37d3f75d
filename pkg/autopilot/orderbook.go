package autopilot

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/domain"
)

// HTTPOrderbook is an OrderbookSnapshot backed by an external orderbook
// service's HTTP API (out of scope, §1 — the orderbook frontend that
// accepts and stores signed orders lives outside this platform; this
// is the thin client autopilot polls). Uses net/http for the same
// reason HTTPDriverClient does: no third-party HTTP client appears
// anywhere in the example pack.
type HTTPOrderbook struct {
	baseURL string
	client  *http.Client
}

func NewHTTPOrderbook(baseURL string, client *http.Client) *HTTPOrderbook {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPOrderbook{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type orderEntryWire struct {
	UID   domain.OrderUID `json:"uid"`
	Owner string          `json:"owner"`
	Order domain.Order    `json:"order"`
}

func (b *HTTPOrderbook) OpenOrders(ctx context.Context) ([]domain.AuctionOrder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("autopilot: build orders request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("autopilot: fetch open orders: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("autopilot: orderbook returned status %d", resp.StatusCode)
	}

	var wire []orderEntryWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("autopilot: decode open orders: %w", err)
	}

	orders := make([]domain.AuctionOrder, 0, len(wire))
	for _, e := range wire {
		orders = append(orders, domain.AuctionOrder{
			UID:   e.UID,
			Owner: common.HexToAddress(e.Owner),
			Order: e.Order,
		})
	}
	return orders, nil
}

type priceWire map[string]string

func (b *HTTPOrderbook) NativePrices(ctx context.Context, tokens []domain.Token) (map[domain.Token]*big.Rat, error) {
	values := url.Values{}
	for _, t := range tokens {
		values.Add("tokens", common.Address(t).Hex())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/prices?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("autopilot: build prices request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("autopilot: fetch native prices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("autopilot: orderbook price endpoint returned status %d", resp.StatusCode)
	}

	var wire priceWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("autopilot: decode native prices: %w", err)
	}

	prices := make(map[domain.Token]*big.Rat, len(wire))
	for tokenHex, priceStr := range wire {
		rat, ok := new(big.Rat).SetString(priceStr)
		if !ok {
			return nil, fmt.Errorf("autopilot: invalid native price %q for %s", priceStr, tokenHex)
		}
		prices[domain.Token(common.HexToAddress(tokenHex))] = rat
	}
	return prices, nil
}
