// Package pricing turns garment line items into tax- and margin-aware prices.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/taller/internal/quote"
	"github.com/Simplici0/taller/internal/sizes"
)

// ErrInvalidInput is returned when costs, margins or the tax rate are not usable numbers.
var ErrInvalidInput = errors.New("invalid pricing input")

var (
	hundred  = decimal.NewFromInt(100)
	one      = decimal.NewFromInt(1)
	sizeStep = decimal.RequireFromString("0.10")
	maxPrice = decimal.NewFromInt(math.MaxInt64)
)

// SizePrice is one entry of a line item's size price table.
type SizePrice struct {
	Size     string `json:"size"`
	Selected bool   `json:"selected"`
	Price    int64  `json:"price"`
}

// LineItemPricing contains every per-unit value derived for a line item.
type LineItemPricing struct {
	LineItemID          string      `json:"lineItemId"`
	Name                string      `json:"name"`
	Quantity            int         `json:"quantity"`
	MaterialCostPerUnit float64     `json:"materialCostPerUnit"`
	LaborCostPerUnit    float64     `json:"laborCostPerUnit"`
	SubtotalPerUnit     float64     `json:"subtotalPerUnit"`
	TaxPerUnit          float64     `json:"taxPerUnit"`
	CostPerUnit         float64     `json:"costPerUnit"`
	ProfitAmount        float64     `json:"profitAmount"`
	BasePricePerUnit    int64       `json:"basePricePerUnit"`
	SizePrices          []SizePrice `json:"sizePrices"`
}

// Price returns the price for size, or 0 when the size is not sold.
func (p LineItemPricing) Price(size string) int64 {
	for _, sp := range p.SizePrices {
		if sp.Size == size {
			return sp.Price
		}
	}
	return 0
}

type unitBreakdown struct {
	material decimal.Decimal
	labor    decimal.Decimal
	subtotal decimal.Decimal
	tax      decimal.Decimal
	cost     decimal.Decimal
	profit   decimal.Decimal
	base     decimal.Decimal
}

// ComputeLineItemPricing prices one garment at taxPercent. Base and size prices are always
// rounded up to whole currency units.
func ComputeLineItemPricing(item quote.LineItem, taxPercent float64) (LineItemPricing, error) {
	if !quote.ValidTaxPercent(taxPercent) {
		return LineItemPricing{}, fmt.Errorf("%w: tax percent %v outside [0,100]", ErrInvalidInput, taxPercent)
	}
	if err := item.Validate(); err != nil {
		return LineItemPricing{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	b := breakdown(item, decimal.NewFromFloat(taxPercent))
	if b.base.GreaterThan(maxPrice) {
		return LineItemPricing{}, fmt.Errorf("%w: line item %q base price %s is too large", ErrInvalidInput, item.Name, b.base)
	}
	table, err := sizeTable(item, b.base)
	if err != nil {
		return LineItemPricing{}, err
	}
	return LineItemPricing{
		LineItemID:          item.ID,
		Name:                item.Name,
		Quantity:            item.Quantity,
		MaterialCostPerUnit: b.material.InexactFloat64(),
		LaborCostPerUnit:    b.labor.InexactFloat64(),
		SubtotalPerUnit:     b.subtotal.InexactFloat64(),
		TaxPerUnit:          b.tax.InexactFloat64(),
		CostPerUnit:         b.cost.InexactFloat64(),
		ProfitAmount:        b.profit.InexactFloat64(),
		BasePricePerUnit:    b.base.IntPart(),
		SizePrices:          table,
	}, nil
}

func breakdown(item quote.LineItem, taxPercent decimal.Decimal) unitBreakdown {
	material := decimal.Zero
	for _, m := range item.MaterialItems {
		material = material.Add(decimal.NewFromFloat(m.Total))
	}
	labor := decimal.NewFromFloat(item.LaborCost.Labor).
		Add(decimal.NewFromFloat(item.LaborCost.Cutting)).
		Add(decimal.NewFromFloat(item.LaborCost.Other))

	subtotal := material.Add(labor)
	tax := subtotal.Mul(taxPercent).Div(hundred)
	cost := subtotal.Add(tax)
	profit := cost.Mul(decimal.NewFromFloat(item.ProfitMarginPercent)).Div(hundred)

	return unitBreakdown{
		material: material,
		labor:    labor,
		subtotal: subtotal,
		tax:      tax,
		cost:     cost,
		profit:   profit,
		base:     cost.Add(profit).Ceil(),
	}
}

// SizeMultiplier is the price scale of ladder position index: 10% per step from the pivot.
func SizeMultiplier(index int) decimal.Decimal {
	return one.Add(sizeStep.Mul(decimal.NewFromInt(int64(index - sizes.PivotIndex))))
}

func sizeTable(item quote.LineItem, base decimal.Decimal) ([]SizePrice, error) {
	table := make([]SizePrice, 0, sizes.Len())
	for i, size := range sizes.Ladder() {
		sp := SizePrice{Size: size, Selected: item.Selected(size)}
		if sp.Selected {
			price := base.Mul(SizeMultiplier(i)).Ceil()
			if price.GreaterThan(maxPrice) {
				return nil, fmt.Errorf("%w: line item %q price for size %s is too large", ErrInvalidInput, item.Name, size)
			}
			sp.Price = price.IntPart()
		}
		table = append(table, sp)
	}
	return table, nil
}

// Totals is the project-level roll-up. In individual mode GrandTotal is an estimate: the
// real revenue depends on which size each buyer picks.
type Totals struct {
	Mode        quote.Mode        `json:"quoteMode"`
	TotalCost   float64           `json:"totalCost"`
	TotalProfit float64           `json:"totalProfit"`
	TotalTax    float64           `json:"totalTax"`
	GrandTotal  float64           `json:"grandTotal"`
	Estimated   bool              `json:"estimated"`
	Basis       string            `json:"basis"`
	LineItems   []LineItemPricing `json:"lineItems"`
}

const (
	BasisExact    = "exact"
	BasisEstimate = "estimate"
)

// ComputeProjectTotals prices every line item and aggregates them according to the quote mode.
func ComputeProjectTotals(project quote.Project, taxPercent float64) (Totals, error) {
	if !quote.ValidTaxPercent(taxPercent) {
		return Totals{}, fmt.Errorf("%w: tax percent %v outside [0,100]", ErrInvalidInput, taxPercent)
	}
	if err := project.Validate(); err != nil {
		return Totals{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	tax := decimal.NewFromFloat(taxPercent)
	totalCost, totalProfit, totalTax, estimate := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	lines := make([]LineItemPricing, 0, len(project.LineItems))

	for _, item := range project.LineItems {
		priced, err := ComputeLineItemPricing(item, taxPercent)
		if err != nil {
			return Totals{}, err
		}
		lines = append(lines, priced)

		b := breakdown(item, tax)
		qty := decimal.NewFromInt(int64(item.Quantity))
		multiplier := one
		if project.Mode == quote.ModeBatch {
			multiplier = qty
		}
		totalCost = totalCost.Add(b.cost.Mul(multiplier))
		totalProfit = totalProfit.Add(b.base.Sub(b.cost).Mul(multiplier))
		totalTax = totalTax.Add(b.tax.Mul(multiplier))
		estimate = estimate.Add(b.base.Mul(qty))
	}

	totals := Totals{
		Mode:        project.Mode,
		TotalCost:   totalCost.InexactFloat64(),
		TotalProfit: totalProfit.InexactFloat64(),
		TotalTax:    totalTax.InexactFloat64(),
		LineItems:   lines,
	}
	if project.Mode == quote.ModeBatch {
		totals.GrandTotal = totalCost.Add(totalProfit).InexactFloat64()
		totals.Basis = BasisExact
	} else {
		totals.GrandTotal = estimate.InexactFloat64()
		totals.Estimated = true
		totals.Basis = BasisEstimate
	}
	return totals, nil
}
