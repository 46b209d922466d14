package pricing

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/Simplici0/taller/internal/quote"
	"github.com/Simplici0/taller/internal/sizes"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func allSizes() map[string]quote.SizeSelection {
	selected := make(map[string]quote.SizeSelection, sizes.Len())
	for _, s := range sizes.Ladder() {
		selected[s] = quote.SizeSelection{IsSelected: true}
	}
	return selected
}

func shirt() quote.LineItem {
	return quote.LineItem{
		ID:                  "camiseta",
		Name:                "Camiseta",
		Quantity:            10,
		MaterialItems:       []quote.MaterialItem{{Name: "Tela", Type: quote.MaterialFabric, Quantity: 1, UnitCost: 50, Total: 50}},
		LaborCost:           quote.LaborCost{Labor: 20, Cutting: 10, Other: 0},
		ProfitMarginPercent: 50,
		SizePrices:          allSizes(),
	}
}

func TestComputeLineItemPricing_NoTax(t *testing.T) {
	result, err := ComputeLineItemPricing(shirt(), 0)
	if err != nil {
		t.Fatalf("ComputeLineItemPricing: %v", err)
	}

	nearlyEqual(t, "subtotal", result.SubtotalPerUnit, 80)
	nearlyEqual(t, "tax", result.TaxPerUnit, 0)
	nearlyEqual(t, "cost", result.CostPerUnit, 80)
	nearlyEqual(t, "profit", result.ProfitAmount, 40)
	if result.BasePricePerUnit != 120 {
		t.Fatalf("basePrice = %d, want 120", result.BasePricePerUnit)
	}
}

func TestComputeLineItemPricing_WithTaxRoundsUp(t *testing.T) {
	result, err := ComputeLineItemPricing(shirt(), 13)
	if err != nil {
		t.Fatalf("ComputeLineItemPricing: %v", err)
	}

	nearlyEqual(t, "tax", result.TaxPerUnit, 10.4)
	nearlyEqual(t, "cost", result.CostPerUnit, 90.4)
	nearlyEqual(t, "profit", result.ProfitAmount, 45.2)
	if result.BasePricePerUnit != 136 {
		t.Fatalf("basePrice = %d, want 136", result.BasePricePerUnit)
	}
}

func TestComputeLineItemPricing_SizeScaling(t *testing.T) {
	result, err := ComputeLineItemPricing(shirt(), 0)
	if err != nil {
		t.Fatalf("ComputeLineItemPricing: %v", err)
	}

	want := map[string]int64{
		"6 a 8":   84,
		"10 a 12": 96,
		"14":      108,
		"S,M,L":   120,
		"XL":      132,
		"XXL":     144,
		"XXXL":    156,
		"XXXXL":   168,
	}
	for size, price := range want {
		if got := result.Price(size); got != price {
			t.Fatalf("price(%q) = %d, want %d", size, got, price)
		}
	}
}

func TestComputeLineItemPricing_TableShape(t *testing.T) {
	item := shirt()
	item.SizePrices = map[string]quote.SizeSelection{
		"S,M,L": {IsSelected: true},
		"XXL":   {IsSelected: false},
	}

	result, err := ComputeLineItemPricing(item, 13)
	if err != nil {
		t.Fatalf("ComputeLineItemPricing: %v", err)
	}

	if len(result.SizePrices) != sizes.Len() {
		t.Fatalf("size table has %d entries, want %d", len(result.SizePrices), sizes.Len())
	}
	for i, sp := range result.SizePrices {
		if sp.Size != sizes.Ladder()[i] {
			t.Fatalf("entry %d is %q, want ladder order", i, sp.Size)
		}
		if sp.Size == sizes.SML {
			if sp.Price != result.BasePricePerUnit {
				t.Fatalf("pivot price = %d, want base %d", sp.Price, result.BasePricePerUnit)
			}
			continue
		}
		if sp.Selected || sp.Price != 0 {
			t.Fatalf("unselected size %q priced %d", sp.Size, sp.Price)
		}
	}
}

func TestComputeLineItemPricing_Properties(t *testing.T) {
	margins := []float64{0, 12.5, 33.3, 50, 175}
	taxes := []float64{0, 7.5, 13, 19, 100}
	fractional := []float64{0.01, 3.33, 47.77, 120.49}

	for _, margin := range margins {
		for _, tax := range taxes {
			for _, material := range fractional {
				item := shirt()
				item.ProfitMarginPercent = margin
				item.MaterialItems[0].Total = material
				item.LaborCost = quote.LaborCost{Labor: material / 3, Cutting: 1.1, Other: 0.07}

				first, err := ComputeLineItemPricing(item, tax)
				if err != nil {
					t.Fatalf("ComputeLineItemPricing: %v", err)
				}
				second, _ := ComputeLineItemPricing(item, tax)
				if !reflect.DeepEqual(first, second) {
					t.Fatalf("pricing is not deterministic: %+v vs %+v", first, second)
				}

				if float64(first.BasePricePerUnit) < first.CostPerUnit+first.ProfitAmount-1e-9 {
					t.Fatalf("base %d rounded below %v", first.BasePricePerUnit, first.CostPerUnit+first.ProfitAmount)
				}
				if float64(first.BasePricePerUnit)-(first.CostPerUnit+first.ProfitAmount) >= 1 {
					t.Fatalf("base %d rounded up by a full unit or more", first.BasePricePerUnit)
				}

				prev := int64(-1)
				for _, sp := range first.SizePrices {
					if sp.Price < prev {
						t.Fatalf("prices decrease along the ladder: %+v", first.SizePrices)
					}
					prev = sp.Price
					if sp.Size == sizes.SML && sp.Price != first.BasePricePerUnit {
						t.Fatalf("pivot %d != base %d", sp.Price, first.BasePricePerUnit)
					}
				}
			}
		}
	}
}

func TestComputeLineItemPricing_ZeroCostIsValid(t *testing.T) {
	item := quote.LineItem{ProfitMarginPercent: 80, SizePrices: allSizes()}

	result, err := ComputeLineItemPricing(item, 13)
	if err != nil {
		t.Fatalf("ComputeLineItemPricing: %v", err)
	}
	if result.BasePricePerUnit != 0 {
		t.Fatalf("basePrice = %d, want 0", result.BasePricePerUnit)
	}
	for _, sp := range result.SizePrices {
		if sp.Price != 0 {
			t.Fatalf("price(%q) = %d, want 0", sp.Size, sp.Price)
		}
	}
}

func TestComputeLineItemPricing_RejectsInvalidInput(t *testing.T) {
	cases := map[string]func() (quote.LineItem, float64){
		"nan material": func() (quote.LineItem, float64) {
			item := shirt()
			item.MaterialItems[0].Total = math.NaN()
			return item, 0
		},
		"negative labor": func() (quote.LineItem, float64) {
			item := shirt()
			item.LaborCost.Labor = -5
			return item, 0
		},
		"infinite margin": func() (quote.LineItem, float64) {
			item := shirt()
			item.ProfitMarginPercent = math.Inf(1)
			return item, 0
		},
		"tax above 100": func() (quote.LineItem, float64) {
			return shirt(), 101
		},
		"nan tax": func() (quote.LineItem, float64) {
			return shirt(), math.NaN()
		},
	}
	for name, build := range cases {
		item, tax := build()
		if _, err := ComputeLineItemPricing(item, tax); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: err = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestComputeProjectTotals_Batch(t *testing.T) {
	pants := shirt()
	pants.ID = "pantalon"
	pants.Quantity = 5
	pants.MaterialItems = []quote.MaterialItem{{Total: 100}}
	pants.LaborCost = quote.LaborCost{Labor: 60, Cutting: 0, Other: 0}
	pants.ProfitMarginPercent = 25

	project := quote.Project{Name: "Uniformes", Mode: quote.ModeBatch, LineItems: []quote.LineItem{shirt(), pants}}

	totals, err := ComputeProjectTotals(project, 0)
	if err != nil {
		t.Fatalf("ComputeProjectTotals: %v", err)
	}

	if totals.LineItems[0].BasePricePerUnit != 120 || totals.LineItems[1].BasePricePerUnit != 200 {
		t.Fatalf("unexpected base prices: %d, %d", totals.LineItems[0].BasePricePerUnit, totals.LineItems[1].BasePricePerUnit)
	}
	nearlyEqual(t, "grandTotal", totals.GrandTotal, 2200)
	nearlyEqual(t, "totalCost", totals.TotalCost, 80*10+160*5)
	nearlyEqual(t, "totalProfit", totals.TotalProfit, 40*10+40*5)
	nearlyEqual(t, "cost+profit", totals.TotalCost+totals.TotalProfit, totals.GrandTotal)
	if totals.Estimated || totals.Basis != BasisExact {
		t.Fatalf("batch totals must be exact, got basis %q", totals.Basis)
	}
}

func TestComputeProjectTotals_BatchTax(t *testing.T) {
	project := quote.Project{Name: "Uniformes", Mode: quote.ModeBatch, LineItems: []quote.LineItem{shirt()}}

	totals, err := ComputeProjectTotals(project, 13)
	if err != nil {
		t.Fatalf("ComputeProjectTotals: %v", err)
	}

	nearlyEqual(t, "totalTax", totals.TotalTax, 104)
	nearlyEqual(t, "totalCost", totals.TotalCost, 904)
	nearlyEqual(t, "grandTotal", totals.GrandTotal, 1360)
}

func TestComputeProjectTotals_IndividualIsEstimate(t *testing.T) {
	item := shirt()
	item.Quantity = 3
	project := quote.Project{Name: "Tienda", Mode: quote.ModeIndividual, LineItems: []quote.LineItem{item}}

	totals, err := ComputeProjectTotals(project, 0)
	if err != nil {
		t.Fatalf("ComputeProjectTotals: %v", err)
	}

	nearlyEqual(t, "totalCost", totals.TotalCost, 80)
	nearlyEqual(t, "totalProfit", totals.TotalProfit, 40)
	nearlyEqual(t, "grandTotal", totals.GrandTotal, 360)
	if !totals.Estimated || totals.Basis != BasisEstimate {
		t.Fatalf("individual totals must be tagged as estimate, got %+v", totals)
	}
}

func TestComputeProjectTotals_Empty(t *testing.T) {
	totals, err := ComputeProjectTotals(quote.Project{Name: "Vacío", Mode: quote.ModeBatch}, 13)
	if err != nil {
		t.Fatalf("ComputeProjectTotals: %v", err)
	}
	nearlyEqual(t, "grandTotal", totals.GrandTotal, 0)
	if len(totals.LineItems) != 0 {
		t.Fatalf("expected no line items, got %d", len(totals.LineItems))
	}
}

func TestSizeMultiplier(t *testing.T) {
	nearlyEqual(t, "index 0", SizeMultiplier(0).InexactFloat64(), 0.7)
	nearlyEqual(t, "pivot", SizeMultiplier(sizes.PivotIndex).InexactFloat64(), 1)
	nearlyEqual(t, "index 7", SizeMultiplier(7).InexactFloat64(), 1.4)
}

func TestComputeLineItemPricing_RejectsPricesBeyondInt64(t *testing.T) {
	huge := quote.LineItem{
		ID:            "lona",
		Name:          "Lona",
		MaterialItems: []quote.MaterialItem{{Name: "Tela", Type: quote.MaterialFabric, Quantity: 1, Total: 7e18}},
		SizePrices:    map[string]quote.SizeSelection{sizes.SML: {IsSelected: true}},
	}

	result, err := ComputeLineItemPricing(huge, 0)
	if err != nil {
		t.Fatalf("pivot-only item should still price: %v", err)
	}
	if result.BasePricePerUnit != 7_000_000_000_000_000_000 || result.Price(sizes.SML) != result.BasePricePerUnit {
		t.Fatalf("unexpected prices: base %d, pivot %d", result.BasePricePerUnit, result.Price(sizes.SML))
	}

	huge.SizePrices[sizes.XXXXL] = quote.SizeSelection{IsSelected: true}
	if _, err := ComputeLineItemPricing(huge, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("XXXXL price beyond int64: err = %v, want ErrInvalidInput", err)
	}

	huge.MaterialItems[0].Total = 1e19
	huge.LaborCost.Labor = 30
	huge.ProfitMarginPercent = 50
	if _, err := ComputeLineItemPricing(huge, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("base price beyond int64: err = %v, want ErrInvalidInput", err)
	}

	project := quote.Project{Name: "Gigante", Mode: quote.ModeBatch, LineItems: []quote.LineItem{huge}}
	project.LineItems[0].Quantity = 1
	if _, err := ComputeProjectTotals(project, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ComputeProjectTotals: err = %v, want ErrInvalidInput", err)
	}
}
