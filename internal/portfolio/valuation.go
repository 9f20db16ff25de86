package portfolio

import (
	"strings"

	"github.com/shopspring/decimal"
)

// holdingsTotal sums holding values. valued is false when no holding has a
// positive value.
func holdingsTotal(holdings []Holding) (total decimal.Decimal, valued bool) {
	total = decimal.Zero
	for _, h := range holdings {
		if h.Value.IsPositive() {
			total = total.Add(h.Value)
			valued = true
		}
	}
	return total, valued
}

// recomputeAllocations sets each holding's share of the holdings total.
// Shares of positively valued holdings sum to one; everything else is zero.
func recomputeAllocations(holdings []Holding) {
	total, valued := holdingsTotal(holdings)
	for i := range holdings {
		if !valued || !holdings[i].Value.IsPositive() {
			holdings[i].Allocation = decimal.Zero
			continue
		}
		holdings[i].Allocation = holdings[i].Value.Div(total)
	}
}

// NonNegative clamps d to zero from below.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ParseDecimal parses s, returning zero for anything that is not a number.
func ParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
