package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RPCClient is the narrow eth_blockNumber/eth_getTransactionReceipt/
// eth_sendRawTransaction slice of *rpc.Client this package needs, mirrored the same way
// pkg/sigverify and pkg/simulate mirror it so none of the three import
// go-ethereum/rpc's concrete type directly.
type RPCClient interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// RPCBlockWatcher polls eth_blockNumber at a fixed interval and reports
// each newly observed block exactly once.
type RPCBlockWatcher struct {
	client   RPCClient
	interval time.Duration
	last     uint64
}

func NewRPCBlockWatcher(client RPCClient, interval time.Duration) *RPCBlockWatcher {
	return &RPCBlockWatcher{client: client, interval: interval}
}

func (w *RPCBlockWatcher) Next(ctx context.Context) (uint64, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
			var hexBlock string
			if err := w.client.CallContext(ctx, &hexBlock, "eth_blockNumber"); err != nil {
				return 0, fmt.Errorf("submitter: eth_blockNumber: %w", err)
			}
			block, err := hexutil.DecodeUint64(hexBlock)
			if err != nil {
				return 0, fmt.Errorf("submitter: decode block number: %w", err)
			}
			if block > w.last {
				w.last = block
				return block, nil
			}
		}
	}
}

// RPCInclusionChecker reports a transaction as included once
// eth_getTransactionReceipt returns a non-null receipt for its hash.
type RPCInclusionChecker struct {
	client RPCClient
}

func NewRPCInclusionChecker(client RPCClient) *RPCInclusionChecker {
	return &RPCInclusionChecker{client: client}
}

func (c *RPCInclusionChecker) Included(ctx context.Context, txHash common.Hash) (bool, error) {
	var receipt map[string]interface{}
	if err := c.client.CallContext(ctx, &receipt, "eth_getTransactionReceipt", txHash); err != nil {
		return false, fmt.Errorf("submitter: eth_getTransactionReceipt: %w", err)
	}
	return receipt != nil, nil
}

// RPCBroadcaster builds a Target send function that broadcasts raw
// signed transaction bytes via eth_sendRawTransaction.
func RPCBroadcaster(client RPCClient) func(ctx context.Context, rawTx []byte) error {
	return func(ctx context.Context, rawTx []byte) error {
		var txHash common.Hash
		return client.CallContext(ctx, &txHash, "eth_sendRawTransaction", hexutil.Encode(rawTx))
	}
}
