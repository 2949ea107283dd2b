package ledger

import "github.com/shopspring/decimal"

// SplitAmount divides amount into count shares in minor units. Every share
// gets the integer quotient and the first share also takes the remainder, so
// the shares always sum to amount truncated to two decimals.
func SplitAmount(amount decimal.Decimal, count int) []decimal.Decimal {
	if count <= 0 {
		return nil
	}

	minor := amount.Shift(2).IntPart()
	per := minor / int64(count)
	rem := minor % int64(count)

	shares := make([]decimal.Decimal, count)
	for i := range shares {
		shares[i] = decimal.New(per, -2)
	}
	shares[0] = decimal.New(per+rem, -2)
	return shares
}
