package domain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// OrderUID is the 56-byte canonical key of every map in this system:
// struct_hash(order)[32] || owner[20] || valid_to[4] (§3).
type OrderUID [56]byte

// DeriveUID builds the UID for an order signed by owner.
func DeriveUID(d EIP712Domain, owner common.Address, order *Order) (OrderUID, error) {
	structHash, err := StructHash(order)
	if err != nil {
		return OrderUID{}, err
	}
	return EncodeUID(structHash, owner, order.ValidTo), nil
}

// EncodeUID concatenates the three UID components. Exposed standalone
// so the signature verifier and the indexer (which reconstruct owners
// independently of signing) can both build it.
func EncodeUID(structHash [32]byte, owner common.Address, validTo uint32) OrderUID {
	var uid OrderUID
	copy(uid[0:32], structHash[:])
	copy(uid[32:52], owner[:])
	binary.BigEndian.PutUint32(uid[52:56], validTo)
	return uid
}

// StructHash returns the embedded order struct hash component.
func (u OrderUID) StructHash() [32]byte {
	var h [32]byte
	copy(h[:], u[0:32])
	return h
}

// Owner returns the embedded owner address component.
func (u OrderUID) Owner() common.Address {
	var a common.Address
	copy(a[:], u[32:52])
	return a
}

// ValidTo returns the embedded expiry component.
func (u OrderUID) ValidTo() uint32 {
	return binary.BigEndian.Uint32(u[52:56])
}

func (u OrderUID) Hex() string {
	return "0x" + hex.EncodeToString(u[:])
}

func (u OrderUID) String() string { return u.Hex() }

// MarshalText/UnmarshalText let OrderUID cross a JSON boundary (and
// serve as a map key) as its "0x"-prefixed hex form rather than the
// default byte-array encoding encoding/json would otherwise produce.
func (u OrderUID) MarshalText() ([]byte, error) {
	return []byte(u.Hex()), nil
}

func (u *OrderUID) UnmarshalText(text []byte) error {
	parsed, err := ParseOrderUID(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseOrderUID decodes a "0x"-prefixed 112-hex-char string into an OrderUID.
func ParseOrderUID(s string) (OrderUID, error) {
	if len(s) >= 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return OrderUID{}, fmt.Errorf("domain: invalid order uid hex: %w", err)
	}
	if len(b) != 56 {
		return OrderUID{}, fmt.Errorf("domain: order uid must be 56 bytes, got %d", len(b))
	}
	var uid OrderUID
	copy(uid[:], b)
	return uid, nil
}
