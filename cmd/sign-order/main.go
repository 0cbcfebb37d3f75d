package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/cowbatch/settlement/pkg/domain"
)

// A developer utility producing a signed EIP-712 order payload, useful
// for manually exercising a driver's /solve endpoint or the autopilot
// loop end to end without a live orderbook.
func main() {
	fmt.Println("Generating new keypair...")
	key, err := crypto.GenerateKey()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	owner := crypto.PubkeyToAddress(key.PublicKey)

	fmt.Printf("Address: %s\n", owner.Hex())
	fmt.Printf("Private Key: %x (KEEP SECRET!)\n\n", crypto.FromECDSA(key))

	order := &domain.Order{
		SellToken:         domain.Token(common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")), // WETH
		BuyToken:          domain.Token(common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")), // USDC
		SellAmount:        new(big.Int).Mul(big.NewInt(1), big.NewInt(1e18)),
		BuyAmount:         big.NewInt(1500_000000),
		FeeAmount:         big.NewInt(0),
		ValidTo:           2000000000,
		Kind:              domain.Sell,
		PartiallyFillable: false,
		SellTokenBalance:  domain.SourceErc20,
		BuyTokenBalance:   domain.DestinationErc20,
		SigningScheme:     domain.Eip712,
	}

	fmt.Println("Order Details:")
	fmt.Printf("  Sell: %s of %s\n", order.SellAmount.String(), order.SellToken.Hex())
	fmt.Printf("  Buy (min): %s of %s\n", order.BuyAmount.String(), order.BuyToken.Hex())
	fmt.Printf("  Kind: %s\n", order.Kind)
	fmt.Printf("  Owner: %s\n\n", owner.Hex())

	chainID := big.NewInt(1)
	settlement := common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41")
	eip712Domain := domain.SettlementDomain(chainID, settlement)

	digest, err := domain.Digest(eip712Domain, order)
	if err != nil {
		fmt.Printf("Error hashing order: %v\n", err)
		os.Exit(1)
	}

	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	order.Signature = sig

	uid, err := domain.DeriveUID(eip712Domain, owner, order)
	if err != nil {
		fmt.Printf("Error deriving UID: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Signature: 0x%x\n", sig)
	fmt.Printf("Order UID: %s\n\n", uid.Hex())

	payload := map[string]interface{}{
		"uid":   uid,
		"owner": owner,
		"order": order,
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Signed order (JSON), paste into a /solve auction's orders[]:")
	fmt.Println(string(out))
}
