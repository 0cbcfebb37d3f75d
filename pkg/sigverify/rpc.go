package sigverify

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cowbatch/settlement/pkg/domain"
)

// RPCClient is the narrow slice of *rpc.Client (go-ethereum/rpc) this
// package needs, mirrored from pkg/simulate's own RPCClient so both
// packages can share a single dialed client without either importing
// the other.
type RPCClient interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// RPCChainReader is the production ChainReader: it calls the
// settlement contract's preSignature(uid) getter and a signer
// contract's isValidSignature(digest, sig) via eth_call, pinned to a
// given block (§4.1).
type RPCChainReader struct {
	client     RPCClient
	settlement common.Address

	bytesType   abi.Type
	bytes32Type abi.Type
}

func NewRPCChainReader(client RPCClient, settlement common.Address) (*RPCChainReader, error) {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		return nil, err
	}
	return &RPCChainReader{client: client, settlement: settlement, bytesType: bytesType, bytes32Type: bytes32Type}, nil
}

var preSignatureSelector = crypto.Keccak256([]byte("preSignature(bytes)"))[:4]
var isValidSignatureSelector = crypto.Keccak256([]byte("isValidSignature(bytes32,bytes)"))[:4]

type callObject struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

func (c *RPCChainReader) PreSignature(ctx context.Context, block uint64, uid domain.OrderUID) (bool, error) {
	packed, err := abi.Arguments{{Type: c.bytesType}}.Pack(uid[:])
	if err != nil {
		return false, fmt.Errorf("sigverify: pack preSignature args: %w", err)
	}
	data := append(append([]byte{}, preSignatureSelector...), packed...)

	var result hexutil.Bytes
	if err := c.client.CallContext(ctx, &result, "eth_call", callObject{To: c.settlement, Data: data}, hexutil.EncodeUint64(block)); err != nil {
		return false, fmt.Errorf("sigverify: preSignature call: %w", err)
	}
	for _, b := range result {
		if b != 0 {
			return true, nil
		}
	}
	return false, nil
}

func (c *RPCChainReader) IsValidSignature(ctx context.Context, block uint64, addr common.Address, digest [32]byte, sig []byte) ([4]byte, error) {
	packed, err := abi.Arguments{{Type: c.bytes32Type}, {Type: c.bytesType}}.Pack(digest, sig)
	if err != nil {
		return [4]byte{}, fmt.Errorf("sigverify: pack isValidSignature args: %w", err)
	}
	data := append(append([]byte{}, isValidSignatureSelector...), packed...)

	var result hexutil.Bytes
	if err := c.client.CallContext(ctx, &result, "eth_call", callObject{To: addr, Data: data}, hexutil.EncodeUint64(block)); err != nil {
		return [4]byte{}, fmt.Errorf("sigverify: isValidSignature call: %w", err)
	}
	var out [4]byte
	copy(out[:], result)
	return out, nil
}
