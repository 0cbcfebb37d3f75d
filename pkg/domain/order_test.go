package domain

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func sampleOrder() *Order {
	return &Order{
		SellToken:         Token(common.HexToAddress("0x1111111111111111111111111111111111111111")),
		BuyToken:          Token(common.HexToAddress("0x2222222222222222222222222222222222222222")),
		Receiver:          common.Address{},
		SellAmount:        big.NewInt(1_000_000_000_000_000_000),
		BuyAmount:         big.NewInt(1_500_000_000),
		ValidTo:           2_000_000_000,
		AppData:           [32]byte{0xaa},
		FeeAmount:         big.NewInt(0),
		Kind:              Sell,
		PartiallyFillable: false,
		SellTokenBalance:  SourceErc20,
		BuyTokenBalance:   DestinationErc20,
		SigningScheme:     Eip712,
		Signature:         make([]byte, 65),
	}
}

func TestOrderValidate(t *testing.T) {
	o := sampleOrder()
	if err := o.Validate(); err != nil {
		t.Fatalf("expected valid order, got %v", err)
	}

	o.SellAmount = big.NewInt(0)
	if err := o.Validate(); err == nil {
		t.Fatal("expected error for zero sell amount")
	}
}

func TestStructHashRoundTrip(t *testing.T) {
	o := sampleOrder()
	want, err := StructHash(o)
	if err != nil {
		t.Fatalf("StructHash: %v", err)
	}

	encoded, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Order
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, err := StructHash(&decoded)
	if err != nil {
		t.Fatalf("StructHash(decoded): %v", err)
	}
	if got != want {
		t.Fatalf("struct hash changed across round-trip: got %x want %x", got, want)
	}
}

func TestDeriveUID(t *testing.T) {
	o := sampleOrder()
	domain := SettlementDomain(big.NewInt(1), common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41"))
	owner := common.HexToAddress("0x3333333333333333333333333333333333333333")

	uid, err := DeriveUID(domain, owner, o)
	if err != nil {
		t.Fatalf("DeriveUID: %v", err)
	}
	if uid.Owner() != owner {
		t.Fatalf("uid owner = %s, want %s", uid.Owner().Hex(), owner.Hex())
	}
	if uid.ValidTo() != o.ValidTo {
		t.Fatalf("uid validTo = %d, want %d", uid.ValidTo(), o.ValidTo)
	}

	reparsed, err := ParseOrderUID(uid.Hex())
	if err != nil {
		t.Fatalf("ParseOrderUID: %v", err)
	}
	if reparsed != uid {
		t.Fatalf("uid hex round-trip mismatch")
	}
}

func TestFilledRegisterMonotone(t *testing.T) {
	reg := NewInMemoryFilledRegister()
	uid := OrderUID{0x01}

	total, err := reg.Add(uid, big.NewInt(100))
	if err != nil || total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("Add: got %v, err %v", total, err)
	}
	total, err = reg.Add(uid, big.NewInt(50))
	if err != nil || total.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("Add cumulative: got %v, err %v", total, err)
	}

	if err := reg.Invalidate(uid); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	got, _ := reg.Get(uid)
	if got.Cmp(MaxFilled) != 0 {
		t.Fatalf("invalidated filled amount = %s, want MaxFilled", got)
	}
}
