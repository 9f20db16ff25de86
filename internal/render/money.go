package render

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the display currency of every amount.
const Currency = money.USD

// FormatMoney renders d in the display currency, rounded to its minor unit,
// e.g. "$1,234.56".
func FormatMoney(d decimal.Decimal) string {
	cur := *money.New(0, Currency).Currency()
	minor := d.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// FormatPercent renders a [0,1] fraction as a percentage with one decimal.
func FormatPercent(fraction decimal.Decimal) string {
	return fraction.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}
