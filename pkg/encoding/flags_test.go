package encoding

import (
	"testing"

	"github.com/cowbatch/settlement/pkg/domain"
)

// §8 "for every flag byte: extract_flags(encode_flags(...)) round-trips
// and reserved bits are zero" — exhaustive over the legal combinations.
func TestFlagsRoundTrip(t *testing.T) {
	kinds := []domain.Kind{domain.Sell, domain.Buy}
	fillable := []bool{false, true}
	sellBalances := []domain.BalanceSource{domain.SourceErc20, domain.SourceExternal, domain.SourceInternal}
	buyBalances := []domain.BalanceDestination{domain.DestinationErc20, domain.DestinationInternal}
	schemes := []domain.SigningScheme{domain.Eip712, domain.EthSign, domain.Eip1271, domain.PreSign}

	for _, k := range kinds {
		for _, pf := range fillable {
			for _, sb := range sellBalances {
				for _, bb := range buyBalances {
					for _, ss := range schemes {
						f, err := EncodeFlags(k, pf, sb, bb, ss)
						if err != nil {
							t.Fatalf("encode(%v,%v,%v,%v,%v): %v", k, pf, sb, bb, ss, err)
						}
						gk, gpf, gsb, gbb, gss, err := DecodeFlags(f)
						if err != nil {
							t.Fatalf("decode(%08b): %v", byte(f), err)
						}
						if gk != k || gpf != pf || gsb != sb || gbb != bb || gss != ss {
							t.Fatalf("round trip mismatch: got (%v,%v,%v,%v,%v), want (%v,%v,%v,%v,%v)",
								gk, gpf, gsb, gbb, gss, k, pf, sb, bb, ss)
						}
					}
				}
			}
		}
	}
}

func TestDecodeFlags_ReservedBitRejected(t *testing.T) {
	f := Flags(1 << 7)
	if _, _, _, _, _, err := DecodeFlags(f); err == nil {
		t.Fatal("expected reserved-bit rejection")
	}
}
