// Package domain holds the canonical order/auction/solution types shared
// by every other package in this module: the clearing engine, the
// encoder, the simulator, the scorer, the driver, and the autopilot all
// operate on these types rather than defining their own.
package domain

import "github.com/ethereum/go-ethereum/common"

// Token is an opaque 20-byte identifier, exactly the on-chain ERC-20
// contract address it denotes.
type Token common.Address

// NativeToken is the sentinel value denoting the chain's native coin.
// Everywhere else a Token is treated as a wrapper ERC-20.
var NativeToken = Token(common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"))

func (t Token) Address() common.Address { return common.Address(t) }
func (t Token) Hex() string             { return common.Address(t).Hex() }
func (t Token) IsNative() bool           { return t == NativeToken }

// MarshalText/UnmarshalText let Token serialize as its hex address
// both as a plain JSON string value and as a JSON object key (the
// latter needs encoding.TextMarshaler since Token's underlying [20]byte
// array doesn't qualify on its own) — used by Auction.NativePrices and
// Solution.ClearingPrices.
func (t Token) MarshalText() ([]byte, error) {
	return []byte(t.Hex()), nil
}

func (t *Token) UnmarshalText(text []byte) error {
	*t = Token(common.HexToAddress(string(text)))
	return nil
}

// TokenLess orders two tokens by their address bytes, used to build the
// sorted tokens[] array the settlement contract expects (§4.3).
func TokenLess(a, b Token) bool {
	aa, bb := common.Address(a), common.Address(b)
	for i := range aa {
		if aa[i] != bb[i] {
			return aa[i] < bb[i]
		}
	}
	return false
}
