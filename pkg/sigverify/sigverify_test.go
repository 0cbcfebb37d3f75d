package sigverify

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cowbatch/settlement/pkg/domain"
)

type fakeChain struct {
	preSigned map[domain.OrderUID]bool
	erc1271   map[common.Address][4]byte
	erc1271Err error
}

func (f *fakeChain) PreSignature(_ context.Context, _ uint64, uid domain.OrderUID) (bool, error) {
	return f.preSigned[uid], nil
}

func (f *fakeChain) IsValidSignature(_ context.Context, _ uint64, addr common.Address, _ [32]byte, _ []byte) ([4]byte, error) {
	if f.erc1271Err != nil {
		return [4]byte{}, f.erc1271Err
	}
	return f.erc1271[addr], nil
}

func testOrder(scheme domain.SigningScheme) *domain.Order {
	return &domain.Order{
		SellToken:         domain.Token(common.HexToAddress("0x1111111111111111111111111111111111111111")),
		BuyToken:          domain.Token(common.HexToAddress("0x2222222222222222222222222222222222222222")),
		SellAmount:        big.NewInt(1e18),
		BuyAmount:         big.NewInt(1500_000000),
		ValidTo:           2000000000,
		FeeAmount:         big.NewInt(0),
		Kind:              domain.Sell,
		SellTokenBalance:  domain.SourceErc20,
		BuyTokenBalance:   domain.DestinationErc20,
		SigningScheme:     scheme,
		Signature:         make([]byte, 65),
	}
}

func settlementDomain() domain.EIP712Domain {
	return domain.SettlementDomain(big.NewInt(1), common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41"))
}

func TestVerifyEip712(t *testing.T) {
	key, _ := crypto.GenerateKey()
	owner := crypto.PubkeyToAddress(key.PublicKey)

	order := testOrder(domain.Eip712)
	d := settlementDomain()
	digest, err := domain.Digest(d, order)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		t.Fatal(err)
	}
	sig[64] += 27
	order.Signature = sig

	uid, _ := domain.DeriveUID(d, owner, order)
	if err := Verify(context.Background(), d, 1, uid, order, owner, nil); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}

	wrongOwner := common.HexToAddress("0x9999999999999999999999999999999999999999")
	if err := Verify(context.Background(), d, 1, uid, order, wrongOwner, nil); err == nil {
		t.Fatal("expected signature mismatch for wrong owner")
	}
}

func TestVerifyEthSign(t *testing.T) {
	key, _ := crypto.GenerateKey()
	owner := crypto.PubkeyToAddress(key.PublicKey)

	order := testOrder(domain.EthSign)
	d := settlementDomain()
	digest, err := domain.Digest(d, order)
	if err != nil {
		t.Fatal(err)
	}
	wrapped := EthSignDigest(digest)
	sig, err := crypto.Sign(wrapped[:], key)
	if err != nil {
		t.Fatal(err)
	}
	sig[64] += 27
	order.Signature = sig

	uid, _ := domain.DeriveUID(d, owner, order)
	if err := Verify(context.Background(), d, 1, uid, order, owner, nil); err != nil {
		t.Fatalf("expected valid ethsign signature, got %v", err)
	}
}

func TestVerifyPreSign(t *testing.T) {
	order := testOrder(domain.PreSign)
	d := settlementDomain()
	owner := common.HexToAddress("0x3333333333333333333333333333333333333333")
	uid, _ := domain.DeriveUID(d, owner, order)

	chain := &fakeChain{preSigned: map[domain.OrderUID]bool{}}
	if err := Verify(context.Background(), d, 1, uid, order, owner, chain); err == nil {
		t.Fatal("expected presign-not-set error")
	}

	chain.preSigned[uid] = true
	if err := Verify(context.Background(), d, 1, uid, order, owner, chain); err != nil {
		t.Fatalf("expected valid presign, got %v", err)
	}
}

func TestVerifyEip1271(t *testing.T) {
	order := testOrder(domain.Eip1271)
	d := settlementDomain()
	owner := common.HexToAddress("0x4444444444444444444444444444444444444444")
	uid, _ := domain.DeriveUID(d, owner, order)

	chain := &fakeChain{erc1271: map[common.Address][4]byte{owner: Eip1271MagicValue}}
	if err := Verify(context.Background(), d, 1, uid, order, owner, chain); err != nil {
		t.Fatalf("expected valid eip1271, got %v", err)
	}

	chain.erc1271[owner] = [4]byte{0, 0, 0, 0}
	if err := Verify(context.Background(), d, 1, uid, order, owner, chain); err == nil {
		t.Fatal("expected erc1271 rejection")
	}
}
