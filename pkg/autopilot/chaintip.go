package autopilot

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RPCClient is the narrow eth_blockNumber/eth_getBlockByNumber slice of
// *rpc.Client this package needs, mirrored the same way pkg/sigverify
// and pkg/submitter mirror it.
type RPCClient interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// RPCChainTip reports the chain's latest block and its timestamp,
// feeding each fresh auction's Block/BlockTimestamp fields (§4.8 step 1).
type RPCChainTip struct {
	client RPCClient
}

func NewRPCChainTip(client RPCClient) *RPCChainTip {
	return &RPCChainTip{client: client}
}

type blockHeader struct {
	Number    hexutil.Uint64 `json:"number"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

func (t *RPCChainTip) Tip(ctx context.Context) (uint64, uint32, error) {
	var header blockHeader
	if err := t.client.CallContext(ctx, &header, "eth_getBlockByNumber", "latest", false); err != nil {
		return 0, 0, fmt.Errorf("autopilot: eth_getBlockByNumber: %w", err)
	}
	return uint64(header.Number), uint32(header.Timestamp), nil
}
