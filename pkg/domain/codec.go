package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderJSON is the wire representation of an Order — every big.Int and
// address rendered as a string, matching the teacher's OrderPayload
// convention for EIP-712 payloads crossing a JSON boundary.
type OrderJSON struct {
	SellToken         string `json:"sellToken"`
	BuyToken          string `json:"buyToken"`
	Receiver          string `json:"receiver"`
	SellAmount        string `json:"sellAmount"`
	BuyAmount         string `json:"buyAmount"`
	ValidTo           uint32 `json:"validTo"`
	AppData           string `json:"appData"`
	FeeAmount         string `json:"feeAmount"`
	Kind              string `json:"kind"`
	PartiallyFillable bool   `json:"partiallyFillable"`
	SellTokenBalance  string `json:"sellTokenBalance"`
	BuyTokenBalance   string `json:"buyTokenBalance"`
	SigningScheme     string `json:"signingScheme"`
	Signature         string `json:"signature"`
}

// ToOrderJSON converts an Order to its wire form.
func ToOrderJSON(o *Order) OrderJSON {
	return OrderJSON{
		SellToken:         o.SellToken.Hex(),
		BuyToken:          o.BuyToken.Hex(),
		Receiver:          o.Receiver.Hex(),
		SellAmount:        o.SellAmount.String(),
		BuyAmount:         o.BuyAmount.String(),
		ValidTo:           o.ValidTo,
		AppData:           "0x" + hex.EncodeToString(o.AppData[:]),
		FeeAmount:         o.FeeAmount.String(),
		Kind:              kindString(o.Kind),
		PartiallyFillable: o.PartiallyFillable,
		SellTokenBalance:  sellBalanceString(o.SellTokenBalance),
		BuyTokenBalance:   buyBalanceString(o.BuyTokenBalance),
		SigningScheme:     o.SigningScheme.String(),
		Signature:         "0x" + hex.EncodeToString(o.Signature),
	}
}

// ToOrder parses the wire form back into an Order.
func (j OrderJSON) ToOrder() (*Order, error) {
	sellAmount, ok := new(big.Int).SetString(j.SellAmount, 10)
	if !ok {
		return nil, fmt.Errorf("domain: invalid sellAmount %q", j.SellAmount)
	}
	buyAmount, ok := new(big.Int).SetString(j.BuyAmount, 10)
	if !ok {
		return nil, fmt.Errorf("domain: invalid buyAmount %q", j.BuyAmount)
	}
	feeAmount, ok := new(big.Int).SetString(j.FeeAmount, 10)
	if !ok {
		return nil, fmt.Errorf("domain: invalid feeAmount %q", j.FeeAmount)
	}

	appDataBytes, err := hex.DecodeString(trimHexPrefix(j.AppData))
	if err != nil || len(appDataBytes) != 32 {
		return nil, fmt.Errorf("domain: invalid appData %q", j.AppData)
	}
	var appData [32]byte
	copy(appData[:], appDataBytes)

	sigBytes, err := hex.DecodeString(trimHexPrefix(j.Signature))
	if err != nil {
		return nil, fmt.Errorf("domain: invalid signature %q", j.Signature)
	}

	kind, err := parseKind(j.Kind)
	if err != nil {
		return nil, err
	}
	sellBalance, err := parseSellBalance(j.SellTokenBalance)
	if err != nil {
		return nil, err
	}
	buyBalance, err := parseBuyBalance(j.BuyTokenBalance)
	if err != nil {
		return nil, err
	}
	scheme, err := parseSigningScheme(j.SigningScheme)
	if err != nil {
		return nil, err
	}

	return &Order{
		SellToken:         Token(common.HexToAddress(j.SellToken)),
		BuyToken:          Token(common.HexToAddress(j.BuyToken)),
		Receiver:          common.HexToAddress(j.Receiver),
		SellAmount:        sellAmount,
		BuyAmount:         buyAmount,
		ValidTo:           j.ValidTo,
		AppData:           appData,
		FeeAmount:         feeAmount,
		Kind:              kind,
		PartiallyFillable: j.PartiallyFillable,
		SellTokenBalance:  sellBalance,
		BuyTokenBalance:   buyBalance,
		SigningScheme:     scheme,
		Signature:         sigBytes,
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0:2] == "0x" {
		return s[2:]
	}
	return s
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "sell":
		return Sell, nil
	case "buy":
		return Buy, nil
	default:
		return 0, fmt.Errorf("domain: invalid order kind %q", s)
	}
}

func parseSellBalance(s string) (BalanceSource, error) {
	switch s {
	case "erc20":
		return SourceErc20, nil
	case "external":
		return SourceExternal, nil
	case "internal":
		return SourceInternal, nil
	default:
		return 0, fmt.Errorf("domain: invalid sell balance source %q", s)
	}
}

func parseBuyBalance(s string) (BalanceDestination, error) {
	switch s {
	case "erc20":
		return DestinationErc20, nil
	case "internal":
		return DestinationInternal, nil
	default:
		return 0, fmt.Errorf("domain: invalid buy balance destination %q", s)
	}
}

func parseSigningScheme(s string) (SigningScheme, error) {
	switch s {
	case "eip712":
		return Eip712, nil
	case "ethsign":
		return EthSign, nil
	case "eip1271":
		return Eip1271, nil
	case "presign":
		return PreSign, nil
	default:
		return 0, fmt.Errorf("domain: invalid signing scheme %q", s)
	}
}

// MarshalJSON/UnmarshalJSON let Order participate directly in JSON
// payloads (driver/solver-engine APIs) without callers manually
// round-tripping through OrderJSON.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToOrderJSON(&o))
}

func (o *Order) UnmarshalJSON(data []byte) error {
	var j OrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	parsed, err := j.ToOrder()
	if err != nil {
		return err
	}
	*o = *parsed
	return nil
}
