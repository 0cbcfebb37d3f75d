package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind is the side of an order: which amount is the cap and which is derived.
type Kind uint8

const (
	Sell Kind = iota
	Buy
)

func (k Kind) String() string {
	if k == Buy {
		return "buy"
	}
	return "sell"
}

// BalanceSource selects where an order's sell amount is withdrawn from.
type BalanceSource uint8

const (
	SourceErc20 BalanceSource = iota
	SourceExternal
	SourceInternal
)

// BalanceDestination selects where an order's buy amount is deposited.
type BalanceDestination uint8

const (
	DestinationErc20 BalanceDestination = iota
	DestinationInternal
)

// SigningScheme identifies how Order.Signature should be interpreted.
type SigningScheme uint8

const (
	Eip712 SigningScheme = iota
	EthSign
	Eip1271
	PreSign
)

func (s SigningScheme) String() string {
	switch s {
	case Eip712:
		return "eip712"
	case EthSign:
		return "ethsign"
	case Eip1271:
		return "eip1271"
	case PreSign:
		return "presign"
	default:
		return "unknown"
	}
}

// Order is immutable once signed. Every field participates in the
// EIP-712 struct hash that derives the order's UID (uid.go), except
// Signature and SigningScheme which authenticate the hash rather than
// being covered by it.
type Order struct {
	SellToken               Token
	BuyToken                Token
	Receiver                common.Address // zero means "order owner"
	SellAmount              *big.Int
	BuyAmount                *big.Int
	ValidTo                 uint32 // unix seconds
	AppData                 [32]byte
	FeeAmount               *big.Int
	Kind                    Kind
	PartiallyFillable       bool
	SellTokenBalance        BalanceSource
	BuyTokenBalance         BalanceDestination
	SigningScheme           SigningScheme
	Signature               []byte
}

// Validate enforces the structural invariants of §3: both amounts are
// strictly positive. Everything else (expiry, limit price, signature)
// is checked downstream by sigverify/clearing, which need chain state
// to evaluate.
func (o *Order) Validate() error {
	if o.SellAmount == nil || o.SellAmount.Sign() <= 0 {
		return fmt.Errorf("domain: sell_amount must be positive")
	}
	if o.BuyAmount == nil || o.BuyAmount.Sign() <= 0 {
		return fmt.Errorf("domain: buy_amount must be positive")
	}
	switch o.SigningScheme {
	case Eip712, EthSign:
		if len(o.Signature) != 65 {
			return fmt.Errorf("domain: %s signature must be 65 bytes, got %d", o.SigningScheme, len(o.Signature))
		}
	case PreSign, Eip1271:
		// signature bytes identify the signer contract; length unconstrained here.
	default:
		return fmt.Errorf("domain: unknown signing scheme %d", o.SigningScheme)
	}
	return nil
}

// EffectiveReceiver returns Receiver, falling back to owner when unset.
func (o *Order) EffectiveReceiver(owner common.Address) common.Address {
	if o.Receiver == (common.Address{}) {
		return owner
	}
	return o.Receiver
}

// Cap returns the order's fill ceiling: SellAmount for Sell orders,
// BuyAmount for Buy orders (§3 FilledAmount register invariant).
func (o *Order) Cap() *big.Int {
	if o.Kind == Buy {
		return o.BuyAmount
	}
	return o.SellAmount
}
