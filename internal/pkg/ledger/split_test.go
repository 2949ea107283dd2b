package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAmount(t *testing.T) {
	tests := []struct {
		amount string
		count  int
		first  string
		rest   string
	}{
		{"3.00", 3, "1.00", "1.00"},
		{"10.00", 1, "10.00", ""},
		{"10.00", 3, "3.34", "3.33"},
		{"10.00", 7, "1.48", "1.42"},
		{"0.05", 3, "0.03", "0.01"},
		{"1.00", 3, "0.34", "0.33"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			shares := SplitAmount(amount, tt.count)
			require.Len(t, shares, tt.count)

			assert.True(t, shares[0].Equal(decimal.RequireFromString(tt.first)), "first share %s", shares[0])
			sum := shares[0]
			for _, s := range shares[1:] {
				assert.True(t, s.Equal(decimal.RequireFromString(tt.rest)), "share %s", s)
				sum = sum.Add(s)
			}
			assert.True(t, sum.Equal(amount), "sum %s != %s", sum, amount)
		})
	}
}

func TestSplitAmount_SumIsExactForUnevenCounts(t *testing.T) {
	amount := decimal.RequireFromString("100.00")
	for _, count := range []int{1, 3, 7, 11, 13} {
		sum := decimal.Zero
		for _, s := range SplitAmount(amount, count) {
			sum = sum.Add(s)
		}
		assert.Truef(t, sum.Equal(amount), "count %d: sum %s", count, sum)
	}
}

func TestSplitAmount_NonPositiveCount(t *testing.T) {
	assert.Nil(t, SplitAmount(decimal.NewFromInt(5), 0))
	assert.Nil(t, SplitAmount(decimal.NewFromInt(5), -1))
}
