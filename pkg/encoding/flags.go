package encoding

import "github.com/cowbatch/settlement/pkg/domain"

// Flags packs the five fields the settlement contract needs per trade
// into a single byte, per the bit layout in §4.3:
//
//	bit 0:    kind (0=Sell, 1=Buy)
//	bit 1:    partiallyFillable
//	bits 2-3: sell-balance source (00=Erc20, 10=External, 11=Internal)
//	bit 4:    buy-balance destination (0=Erc20, 1=Internal)
//	bits 5-6: signing scheme (00=Eip712, 01=EthSign, 10=Eip1271, 11=PreSign)
//	bits >=7: reserved, must be zero.
type Flags byte

const (
	flagKindBit              = 0
	flagPartiallyFillableBit = 1
	flagSellBalanceShift     = 2
	flagSellBalanceMask      = 0b11 << flagSellBalanceShift
	flagBuyBalanceBit        = 4
	flagSigningSchemeShift   = 5
	flagSigningSchemeMask    = 0b11 << flagSigningSchemeShift
	flagReservedMask         = ^byte(0) << 7
)

// sell-balance source is not a plain 2-bit enum of the BalanceSource
// ordinal: the contract's encoding is 00=Erc20, 10=External, 11=Internal
// (01 is unused), so it needs its own mapping rather than domain.BalanceSource's
// natural 0,1,2 ordinals.
func encodeSellBalance(s domain.BalanceSource) (byte, error) {
	switch s {
	case domain.SourceErc20:
		return 0b00, nil
	case domain.SourceExternal:
		return 0b10, nil
	case domain.SourceInternal:
		return 0b11, nil
	default:
		return 0, domain.NewValidationError(domain.ReasonReservedFlagBits, "unknown sell balance source")
	}
}

func decodeSellBalance(bits byte) (domain.BalanceSource, error) {
	switch bits {
	case 0b00:
		return domain.SourceErc20, nil
	case 0b10:
		return domain.SourceExternal, nil
	case 0b11:
		return domain.SourceInternal, nil
	default:
		return 0, domain.NewValidationError(domain.ReasonReservedFlagBits, "unused sell balance encoding 01")
	}
}

func encodeSigningScheme(s domain.SigningScheme) (byte, error) {
	switch s {
	case domain.Eip712:
		return 0b00, nil
	case domain.EthSign:
		return 0b01, nil
	case domain.Eip1271:
		return 0b10, nil
	case domain.PreSign:
		return 0b11, nil
	default:
		return 0, domain.NewValidationError(domain.ReasonReservedFlagBits, "unknown signing scheme")
	}
}

func decodeSigningScheme(bits byte) domain.SigningScheme {
	switch bits {
	case 0b00:
		return domain.Eip712
	case 0b01:
		return domain.EthSign
	case 0b10:
		return domain.Eip1271
	default:
		return domain.PreSign
	}
}

// EncodeFlags packs the five trade fields into one byte. It never sets a
// reserved bit itself; a caller that feeds it an out-of-range enum value
// gets an error rather than silently-wrapped bits.
func EncodeFlags(kind domain.Kind, partiallyFillable bool, sellBalance domain.BalanceSource, buyBalance domain.BalanceDestination, scheme domain.SigningScheme) (Flags, error) {
	var f byte

	if kind == domain.Buy {
		f |= 1 << flagKindBit
	}
	if partiallyFillable {
		f |= 1 << flagPartiallyFillableBit
	}

	sb, err := encodeSellBalance(sellBalance)
	if err != nil {
		return 0, err
	}
	f |= sb << flagSellBalanceShift

	if buyBalance == domain.DestinationInternal {
		f |= 1 << flagBuyBalanceBit
	}

	ss, err := encodeSigningScheme(scheme)
	if err != nil {
		return 0, err
	}
	f |= ss << flagSigningSchemeShift

	return Flags(f), nil
}

// DecodeFlags is EncodeFlags's inverse; it rejects any reserved bit set
// above bit 6. Per spec.md's resolution of the reserved-bits open
// question, this package rejects rather than masking them away; it does
// not log — ErrReservedBitsSet carries the raw byte for the caller to log.
func DecodeFlags(f Flags) (kind domain.Kind, partiallyFillable bool, sellBalance domain.BalanceSource, buyBalance domain.BalanceDestination, scheme domain.SigningScheme, err error) {
	raw := byte(f)
	if raw&flagReservedMask != 0 {
		err = &ErrReservedBitsSet{Raw: raw}
		return
	}

	if raw&(1<<flagKindBit) != 0 {
		kind = domain.Buy
	} else {
		kind = domain.Sell
	}
	partiallyFillable = raw&(1<<flagPartiallyFillableBit) != 0

	sellBalance, err = decodeSellBalance((raw & flagSellBalanceMask) >> flagSellBalanceShift)
	if err != nil {
		return
	}

	if raw&(1<<flagBuyBalanceBit) != 0 {
		buyBalance = domain.DestinationInternal
	} else {
		buyBalance = domain.DestinationErc20
	}

	scheme = decodeSigningScheme((raw & flagSigningSchemeMask) >> flagSigningSchemeShift)
	return
}

// ErrReservedBitsSet reports a flags byte with a nonzero bit at
// position 7 or above — rejected rather than masked (§9 Open Question).
type ErrReservedBitsSet struct {
	Raw byte
}

func (e *ErrReservedBitsSet) Error() string {
	return "encoding: reserved flag bits set in byte"
}
