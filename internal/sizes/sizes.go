// Package sizes holds the fixed garment size ladder shared by pricing and fabric consumption.
package sizes

import "github.com/shopspring/decimal"

// Size labels in ladder order.
const (
	Kids6to8   = "6 a 8"
	Kids10to12 = "10 a 12"
	Youth14    = "14"
	SML        = "S,M,L"
	XL         = "XL"
	XXL        = "XXL"
	XXXL       = "XXXL"
	XXXXL      = "XXXXL"
)

// Default is the size assumed when a fitting records nothing for a garment.
const Default = SML

// PivotIndex is the ladder position priced at the unscaled base price.
const PivotIndex = 3

var ladder = [...]string{Kids6to8, Kids10to12, Youth14, SML, XL, XXL, XXXL, XXXXL}

var consumptionFactors = map[string]decimal.Decimal{
	Kids6to8:   decimal.RequireFromString("0.85"),
	Kids10to12: decimal.RequireFromString("0.90"),
	Youth14:    decimal.RequireFromString("0.95"),
	SML:        decimal.NewFromInt(1),
	XL:         decimal.RequireFromString("1.10"),
	XXL:        decimal.RequireFromString("1.20"),
	XXXL:       decimal.RequireFromString("1.30"),
	XXXXL:      decimal.RequireFromString("1.40"),
}

// Ladder returns a copy of the size labels in ladder order.
func Ladder() []string {
	out := make([]string, len(ladder))
	copy(out, ladder[:])
	return out
}

// Len is the number of sizes on the ladder.
func Len() int {
	return len(ladder)
}

// Index returns the ladder position of label.
func Index(label string) (int, bool) {
	for i, s := range ladder {
		if s == label {
			return i, true
		}
	}
	return 0, false
}

// Known reports whether label is on the ladder.
func Known(label string) bool {
	_, ok := Index(label)
	return ok
}

// ConsumptionFactor returns the fabric consumption multiplier for label.
// Labels off the ladder consume like the pivot size.
func ConsumptionFactor(label string) decimal.Decimal {
	if f, ok := consumptionFactors[label]; ok {
		return f
	}
	return decimal.NewFromInt(1)
}
