package clearing

import "math/big"

// floorDiv computes floor(num/den) for non-negative operands using a
// 512-bit-safe big.Int intermediate (§4.2 "multiplications are
// 512-bit intermediates to avoid overflow").
func floorDiv(num, den *big.Int) *big.Int {
	q := new(big.Int)
	q.Quo(num, den)
	return q
}

// ceilDiv computes ceil(num/den) for non-negative operands.
func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int), new(big.Int)
	q.QuoRem(num, den, r)
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// mulDiv computes floor(a*b/c) with an intermediate wide enough for
// a*b to never overflow (big.Int is arbitrary-precision, so this is
// exact regardless of a, b, c magnitude — the 256-bit inputs the
// contract uses always fit in a 512-bit product).
func mulDiv(a, b, c *big.Int) *big.Int {
	prod := new(big.Int).Mul(a, b)
	return floorDiv(prod, c)
}

// mulDivCeil computes ceil(a*b/c).
func mulDivCeil(a, b, c *big.Int) *big.Int {
	prod := new(big.Int).Mul(a, b)
	return ceilDiv(prod, c)
}
