// Package encoding implements §4.3: turning a Solution into the exact
// settle(tokens[], clearingPrices[], trades[], interactions[3][]) call
// payload the on-chain settlement contract expects.
package encoding

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cowbatch/settlement/pkg/domain"
)

// maxUint256 bounds every amount the encoder emits; anything larger
// cannot be represented in the contract's uint256 arguments (§6
// validation gate: "all encoded amounts fit in 256 bits").
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// EncodedTrade is one trade as the settlement contract's GPv2Trade.Data
// struct lays it out: token indices into the call's tokens[] array
// rather than addresses, plus the packed flags byte.
type EncodedTrade struct {
	SellTokenIndex uint16
	BuyTokenIndex  uint16
	Receiver       common.Address
	SellAmount     *big.Int
	BuyAmount      *big.Int
	ValidTo        uint32
	AppData        [32]byte
	FeeAmount      *big.Int
	Flags          Flags
	ExecutedAmount *big.Int
	Signature      []byte
}

// SettlementCall is the decoded form of a settle(...) call, before ABI
// packing. Interactions holds the three ordered phases [pre, intra,
// post] exactly as the contract's interactions[3][] parameter does.
type SettlementCall struct {
	Tokens         []common.Address
	ClearingPrices []*big.Int
	Trades         []EncodedTrade
	Interactions   [3][]domain.Interaction
}

// Encode builds the settlement call for solution against auction's
// order set. vaultRelayer is the on-chain address interactions must
// never target (§4.3).
func Encode(eip712Domain domain.EIP712Domain, auction *domain.Auction, solution *domain.Solution, vaultRelayer common.Address) (*SettlementCall, error) {
	tokens, tokenIndex, err := buildTokenIndex(solution)
	if err != nil {
		return nil, err
	}

	prices := make([]*big.Int, len(tokens))
	for i, tok := range tokens {
		p, ok := solution.ClearingPrices[tok]
		if !ok {
			return nil, domain.NewValidationError(domain.ReasonUnknownToken, tok.Hex())
		}
		if p.Sign() <= 0 || p.Cmp(maxUint256) > 0 {
			return nil, domain.NewValidationError(domain.ReasonAmountOverflow, "clearing price out of range: "+tok.Hex())
		}
		prices[i] = p
	}

	trades := make([]EncodedTrade, 0, len(solution.Trades))
	for _, t := range solution.Trades {
		ao, err := auction.ResolveOrder(eip712Domain, t)
		if err != nil {
			return nil, err
		}
		o := ao.Order

		sellIdx, ok := tokenIndex[o.SellToken]
		if !ok {
			return nil, domain.NewValidationError(domain.ReasonUnknownToken, o.SellToken.Hex())
		}
		buyIdx, ok := tokenIndex[o.BuyToken]
		if !ok {
			return nil, domain.NewValidationError(domain.ReasonUnknownToken, o.BuyToken.Hex())
		}

		flags, err := EncodeFlags(o.Kind, o.PartiallyFillable, o.SellTokenBalance, o.BuyTokenBalance, o.SigningScheme)
		if err != nil {
			return nil, err
		}

		for _, amt := range []*big.Int{o.SellAmount, o.BuyAmount, o.FeeAmount, t.ExecutedAmount} {
			if amt == nil || amt.Sign() < 0 || amt.Cmp(maxUint256) > 0 {
				return nil, domain.NewValidationError(domain.ReasonAmountOverflow, t.OrderUID.Hex())
			}
		}

		trades = append(trades, EncodedTrade{
			SellTokenIndex: sellIdx,
			BuyTokenIndex:  buyIdx,
			Receiver:       o.EffectiveReceiver(ao.Owner),
			SellAmount:     o.SellAmount,
			BuyAmount:      o.BuyAmount,
			ValidTo:        o.ValidTo,
			AppData:        o.AppData,
			FeeAmount:      o.FeeAmount,
			Flags:          flags,
			ExecutedAmount: t.ExecutedAmount,
			Signature:      o.Signature,
		})
	}

	interactions := [3][]domain.Interaction{
		solution.Interactions.Pre,
		solution.Interactions.Intra,
		solution.Interactions.Post,
	}
	for _, phase := range interactions {
		for _, ia := range phase {
			if ia.Target == vaultRelayer {
				return nil, domain.NewValidationError(domain.ReasonVaultRelayerTarget, ia.Target.Hex())
			}
		}
	}

	return &SettlementCall{
		Tokens:         tokens,
		ClearingPrices: prices,
		Trades:         trades,
		Interactions:   interactions,
	}, nil
}

// buildTokenIndex computes the sorted list of every token that has a
// clearing price (§4.3). Trade tokens are not added here: Encode rejects
// a trade whose sell or buy token has no clearing price.
func buildTokenIndex(solution *domain.Solution) ([]common.Address, map[domain.Token]uint16, error) {
	set := make(map[domain.Token]struct{}, len(solution.ClearingPrices))
	for tok := range solution.ClearingPrices {
		set[tok] = struct{}{}
	}

	tokens := make([]domain.Token, 0, len(set))
	for tok := range set {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return domain.TokenLess(tokens[i], tokens[j]) })

	if len(tokens) > int(^uint16(0)) {
		return nil, nil, domain.NewValidationError(domain.ReasonAmountOverflow, "too many tokens for a uint16 index")
	}

	index := make(map[domain.Token]uint16, len(tokens))
	out := make([]common.Address, len(tokens))
	for i, tok := range tokens {
		index[tok] = uint16(i)
		out[i] = tok.Address()
	}
	return out, index, nil
}

// tradeFields and interactionFields mirror the settlement contract's
// GPv2Trade.Data and GPv2Interaction.Data structs for ABI packing
// (accounts/abi tuple encoding — grounded on the pack's own
// tuple-type + Arguments.Pack idiom for ABI-encoding a Solidity struct).
var tradeFields = []abi.ArgumentMarshaling{
	{Name: "sellTokenIndex", Type: "uint16"},
	{Name: "buyTokenIndex", Type: "uint16"},
	{Name: "receiver", Type: "address"},
	{Name: "sellAmount", Type: "uint256"},
	{Name: "buyAmount", Type: "uint256"},
	{Name: "validTo", Type: "uint32"},
	{Name: "appData", Type: "bytes32"},
	{Name: "feeAmount", Type: "uint256"},
	{Name: "flags", Type: "uint8"},
	{Name: "executedAmount", Type: "uint256"},
	{Name: "signature", Type: "bytes"},
}

var interactionFields = []abi.ArgumentMarshaling{
	{Name: "target", Type: "address"},
	{Name: "value", Type: "uint256"},
	{Name: "callData", Type: "bytes"},
}

var settleArguments = abi.Arguments{
	{Name: "tokens", Type: mustType("address[]", nil)},
	{Name: "clearingPrices", Type: mustType("uint256[]", nil)},
	{Name: "trades", Type: mustType("tuple[]", tradeFields)},
	// interactions[3][]: a fixed array of 3 dynamic arrays of
	// GPv2Interaction.Data, the same convention go-ethereum parses for
	// any "T[][N]" type string.
	{Name: "interactions", Type: mustType("tuple[][3]", interactionFields)},
}

func mustType(typeString string, fields []abi.ArgumentMarshaling) abi.Type {
	t, err := abi.NewType(typeString, "", fields)
	if err != nil {
		panic(fmt.Sprintf("encoding: bad static abi type %q: %v", typeString, err))
	}
	return t
}

type abiTradeTuple struct {
	SellTokenIndex uint16
	BuyTokenIndex  uint16
	Receiver       common.Address
	SellAmount     *big.Int
	BuyAmount      *big.Int
	ValidTo        uint32
	AppData        [32]byte
	FeeAmount      *big.Int
	Flags          uint8
	ExecutedAmount *big.Int
	Signature      []byte
}

type abiInteractionTuple struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

// Pack ABI-encodes the settlement call exactly as the contract's
// settle(address[],uint256[],GPv2Trade.Data[],GPv2Interaction.Data[3][])
// function selector expects its arguments.
func (c *SettlementCall) Pack() ([]byte, error) {
	trades := make([]abiTradeTuple, len(c.Trades))
	for i, t := range c.Trades {
		trades[i] = abiTradeTuple{
			SellTokenIndex: t.SellTokenIndex,
			BuyTokenIndex:  t.BuyTokenIndex,
			Receiver:       t.Receiver,
			SellAmount:     t.SellAmount,
			BuyAmount:      t.BuyAmount,
			ValidTo:        t.ValidTo,
			AppData:        t.AppData,
			FeeAmount:      t.FeeAmount,
			Flags:          uint8(t.Flags),
			ExecutedAmount: t.ExecutedAmount,
			Signature:      t.Signature,
		}
	}

	var interactions [3][]abiInteractionTuple
	for phase, list := range c.Interactions {
		interactions[phase] = make([]abiInteractionTuple, len(list))
		for i, ia := range list {
			value := ia.Value
			if value == nil {
				value = big.NewInt(0)
			}
			interactions[phase][i] = abiInteractionTuple{Target: ia.Target, Value: value, CallData: ia.CallData}
		}
	}

	return settleArguments.Pack(c.Tokens, c.ClearingPrices, trades, interactions)
}
