package pricing

import (
	"github.com/shopspring/decimal"
)

// Exceeds reports whether candidate is more than margin (a fraction, 0.02 for
// 2%) above current. The comparison is done in decimal so formatting noise
// such as 101.00 vs 100.00 is never mistaken for a markdown.
func Exceeds(candidate, current, margin float64) bool {
	if current <= 0 {
		return false
	}
	threshold := decimal.NewFromFloat(current).
		Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(margin)))
	return decimal.NewFromFloat(candidate).GreaterThan(threshold)
}

// DiscountLabel formats round((normal-current)/normal*100) as "-N%".
// It returns "" when normal is not a positive amount above current.
func DiscountLabel(normal, current float64) string {
	if normal <= 0 || current >= normal {
		return ""
	}
	n := decimal.NewFromFloat(normal)
	pct := n.Sub(decimal.NewFromFloat(current)).
		Div(n).
		Mul(decimal.NewFromInt(100)).
		Round(0)
	return "-" + pct.String() + "%"
}
