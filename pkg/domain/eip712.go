package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain is the fixed domain separator input for every order in
// this deployment: name "Gnosis Protocol", version "v2", the chain id,
// and the settlement contract address (§3 "Order UID").
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// SettlementDomain builds the canonical domain for a given chain and
// settlement contract, matching the on-chain GPv2Settlement deployment.
func SettlementDomain(chainID *big.Int, settlement common.Address) EIP712Domain {
	return EIP712Domain{
		Name:              "Gnosis Protocol",
		Version:           "v2",
		ChainID:           chainID,
		VerifyingContract: settlement,
	}
}

var orderEIP712Types = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Order": {
		{Name: "sellToken", Type: "address"},
		{Name: "buyToken", Type: "address"},
		{Name: "receiver", Type: "address"},
		{Name: "sellAmount", Type: "uint256"},
		{Name: "buyAmount", Type: "uint256"},
		{Name: "validTo", Type: "uint32"},
		{Name: "appData", Type: "bytes32"},
		{Name: "feeAmount", Type: "uint256"},
		{Name: "kind", Type: "string"},
		{Name: "partiallyFillable", Type: "bool"},
		{Name: "sellTokenBalance", Type: "string"},
		{Name: "buyTokenBalance", Type: "string"},
	},
}

func kindString(k Kind) string {
	if k == Buy {
		return "buy"
	}
	return "sell"
}

func sellBalanceString(s BalanceSource) string {
	switch s {
	case SourceExternal:
		return "external"
	case SourceInternal:
		return "internal"
	default:
		return "erc20"
	}
}

func buyBalanceString(d BalanceDestination) string {
	if d == DestinationInternal {
		return "internal"
	}
	return "erc20"
}

func domainTypedData(d EIP712Domain) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*ethmath.HexOrDecimal256)(d.ChainID),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

// StructHash computes the EIP-712 struct hash of an order's Order
// typed-data member (i.e. hashStruct(order), not the final digest).
// This is the value that the UID embeds and that a round-trip through
// encode/decode must reproduce unchanged (§8).
func StructHash(order *Order) ([32]byte, error) {
	message := apitypes.TypedDataMessage{
		"sellToken":         order.SellToken.Hex(),
		"buyToken":          order.BuyToken.Hex(),
		"receiver":          order.Receiver.Hex(),
		"sellAmount":        order.SellAmount.String(),
		"buyAmount":         order.BuyAmount.String(),
		"validTo":           fmt.Sprintf("%d", order.ValidTo),
		"appData":           "0x" + common.Bytes2Hex(order.AppData[:]),
		"feeAmount":         order.FeeAmount.String(),
		"kind":              kindString(order.Kind),
		"partiallyFillable": order.PartiallyFillable,
		"sellTokenBalance":  sellBalanceString(order.SellTokenBalance),
		"buyTokenBalance":   buyBalanceString(order.BuyTokenBalance),
	}

	typedData := apitypes.TypedData{
		Types:       orderEIP712Types,
		PrimaryType: "Order",
		Message:     message,
	}

	hash, err := typedData.HashStruct("Order", message)
	if err != nil {
		return [32]byte{}, fmt.Errorf("domain: hash order struct: %w", err)
	}
	var out [32]byte
	copy(out[:], hash)
	return out, nil
}

// Digest computes the final EIP-712 signing digest:
// keccak256(0x19 0x01 || domainSeparator || structHash(order)).
func Digest(d EIP712Domain, order *Order) ([32]byte, error) {
	structHash, err := StructHash(order)
	if err != nil {
		return [32]byte{}, err
	}

	domainData := domainTypedData(d)
	typedData := apitypes.TypedData{Types: orderEIP712Types, PrimaryType: "Order", Domain: domainData}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", domainData.Map())
	if err != nil {
		return [32]byte{}, fmt.Errorf("domain: hash domain separator: %w", err)
	}

	raw := make([]byte, 0, 2+32+32)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash[:]...)

	return crypto.Keccak256Hash(raw), nil
}
