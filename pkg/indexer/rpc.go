package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cowbatch/settlement/pkg/domain"
)

// settlementEventsABI describes the four settlement-contract events this
// indexer watches, grounded on the same abi.JSON + FilterLogs/Unpack
// shape as the pack's own on-chain event watcher (the event signatures
// themselves follow the protocol's public contract interface, §2/§6).
const settlementEventsABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "owner", "type": "address"},
			{"indexed": false, "name": "sellToken", "type": "address"},
			{"indexed": false, "name": "buyToken", "type": "address"},
			{"indexed": false, "name": "sellAmount", "type": "uint256"},
			{"indexed": false, "name": "buyAmount", "type": "uint256"},
			{"indexed": false, "name": "feeAmount", "type": "uint256"},
			{"indexed": false, "name": "orderUid", "type": "bytes"}
		],
		"name": "Trade",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "solver", "type": "address"}
		],
		"name": "Settlement",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "owner", "type": "address"},
			{"indexed": false, "name": "orderUid", "type": "bytes"}
		],
		"name": "OrderInvalidated",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "owner", "type": "address"},
			{"indexed": false, "name": "orderUid", "type": "bytes"},
			{"indexed": false, "name": "signed", "type": "bool"}
		],
		"name": "PreSignature",
		"type": "event"
	}
]`

// RPCLogSource fetches settlement-contract logs over eth_getLogs (via
// ethclient.FilterLogs) and decodes them with the ABI above, the same
// two-step shape the pack's own event watcher uses: topics give the
// indexed fields, abi.Unpack gives the rest.
type RPCLogSource struct {
	client     *ethclient.Client
	settlement common.Address
	contract   abi.ABI
}

func NewRPCLogSource(client *ethclient.Client, settlement common.Address) (*RPCLogSource, error) {
	parsed, err := abi.JSON(strings.NewReader(settlementEventsABI))
	if err != nil {
		return nil, fmt.Errorf("indexer: parse settlement events abi: %w", err)
	}
	return &RPCLogSource{client: client, settlement: settlement, contract: parsed}, nil
}

// FetchLogs implements LogSource over the half-open range [from, to).
func (s *RPCLogSource) FetchLogs(ctx context.Context, from, to uint64) (Log, error) {
	if to <= from {
		return Log{}, nil
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to - 1),
		Addresses: []common.Address{s.settlement},
	}
	rawLogs, err := s.client.FilterLogs(ctx, query)
	if err != nil {
		return Log{}, fmt.Errorf("indexer: filter logs [%d,%d): %w", from, to, err)
	}

	var out Log
	for _, raw := range rawLogs {
		if len(raw.Topics) == 0 {
			continue
		}
		event, err := s.contract.EventByID(raw.Topics[0])
		if err != nil {
			continue // not one of our four events
		}
		switch event.Name {
		case "Trade":
			t, err := s.decodeTrade(raw)
			if err != nil {
				return Log{}, fmt.Errorf("indexer: decode Trade: %w", err)
			}
			out.Trades = append(out.Trades, t)
		case "Settlement":
			se, err := s.decodeSettlement(ctx, raw)
			if err != nil {
				return Log{}, fmt.Errorf("indexer: decode Settlement: %w", err)
			}
			out.Settlements = append(out.Settlements, se)
		case "OrderInvalidated":
			inv, err := s.decodeOrderInvalidated(raw)
			if err != nil {
				return Log{}, fmt.Errorf("indexer: decode OrderInvalidated: %w", err)
			}
			out.OrderInvalidations = append(out.OrderInvalidations, inv)
		case "PreSignature":
			ps, err := s.decodePreSignature(raw)
			if err != nil {
				return Log{}, fmt.Errorf("indexer: decode PreSignature: %w", err)
			}
			out.PreSignatures = append(out.PreSignatures, ps)
		}
	}
	return out, nil
}

func (s *RPCLogSource) decodeTrade(raw types.Log) (TradeEvent, error) {
	var t TradeEvent
	if len(raw.Topics) < 2 {
		return t, fmt.Errorf("missing owner topic")
	}
	values, err := s.contract.Unpack("Trade", raw.Data)
	if err != nil {
		return t, err
	}
	if len(values) != 6 {
		return t, fmt.Errorf("unexpected Trade field count %d", len(values))
	}
	sellAmount, _ := values[2].(*big.Int)
	buyAmount, _ := values[3].(*big.Int)
	feeAmount, _ := values[4].(*big.Int)
	orderUidBytes, _ := values[5].([]byte)

	uid, err := bytesToOrderUID(orderUidBytes)
	if err != nil {
		return t, err
	}

	return TradeEvent{
		Owner:      common.BytesToAddress(raw.Topics[1].Bytes()),
		OrderUID:   uid,
		SellAmount: sellAmount,
		BuyAmount:  buyAmount,
		FeeAmount:  feeAmount,
		Block:      raw.BlockNumber,
		LogIndex:   raw.Index,
	}, nil
}

func (s *RPCLogSource) decodeSettlement(ctx context.Context, raw types.Log) (SettlementEvent, error) {
	var se SettlementEvent
	if len(raw.Topics) < 2 {
		return se, fmt.Errorf("missing solver topic")
	}
	tx, _, err := s.client.TransactionByHash(ctx, raw.TxHash)
	if err != nil {
		return se, fmt.Errorf("lookup tx %s: %w", raw.TxHash.Hex(), err)
	}
	return SettlementEvent{
		Solver:   common.BytesToAddress(raw.Topics[1].Bytes()),
		TxHash:   raw.TxHash,
		TxNonce:  tx.Nonce(),
		Block:    raw.BlockNumber,
		LogIndex: raw.Index,
	}, nil
}

func (s *RPCLogSource) decodeOrderInvalidated(raw types.Log) (OrderInvalidatedEvent, error) {
	var inv OrderInvalidatedEvent
	if len(raw.Topics) < 2 {
		return inv, fmt.Errorf("missing owner topic")
	}
	values, err := s.contract.Unpack("OrderInvalidated", raw.Data)
	if err != nil {
		return inv, err
	}
	if len(values) != 1 {
		return inv, fmt.Errorf("unexpected OrderInvalidated field count %d", len(values))
	}
	orderUidBytes, _ := values[0].([]byte)
	uid, err := bytesToOrderUID(orderUidBytes)
	if err != nil {
		return inv, err
	}
	return OrderInvalidatedEvent{
		Owner:    common.BytesToAddress(raw.Topics[1].Bytes()),
		OrderUID: uid,
		Block:    raw.BlockNumber,
		LogIndex: raw.Index,
	}, nil
}

func (s *RPCLogSource) decodePreSignature(raw types.Log) (PreSignatureEvent, error) {
	var ps PreSignatureEvent
	if len(raw.Topics) < 2 {
		return ps, fmt.Errorf("missing owner topic")
	}
	values, err := s.contract.Unpack("PreSignature", raw.Data)
	if err != nil {
		return ps, err
	}
	if len(values) != 2 {
		return ps, fmt.Errorf("unexpected PreSignature field count %d", len(values))
	}
	orderUidBytes, _ := values[0].([]byte)
	signed, _ := values[1].(bool)
	uid, err := bytesToOrderUID(orderUidBytes)
	if err != nil {
		return ps, err
	}
	return PreSignatureEvent{
		Owner:    common.BytesToAddress(raw.Topics[1].Bytes()),
		OrderUID: uid,
		Signed:   signed,
		Block:    raw.BlockNumber,
		LogIndex: raw.Index,
	}, nil
}

func bytesToOrderUID(b []byte) (domain.OrderUID, error) {
	var uid domain.OrderUID
	if len(b) != len(uid) {
		return uid, fmt.Errorf("wrong order uid length %d", len(b))
	}
	copy(uid[:], b)
	return uid, nil
}
