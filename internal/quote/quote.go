// Package quote defines the typed records the pricing and consumption engines operate on.
package quote

import (
	"time"
)

// MaterialType classifies a bill-of-materials entry.
type MaterialType string

const (
	MaterialFabric MaterialType = "fabric"
	MaterialTrim   MaterialType = "trim"
	MaterialSupply MaterialType = "supply"
)

// Mode decides how line item quantities aggregate into project totals.
type Mode string

const (
	// ModeIndividual quotes a per-unit price; each buyer picks one size.
	ModeIndividual Mode = "individual"
	// ModeBatch quotes a fixed quantity ordered by a single client.
	ModeBatch Mode = "batch"
)

// MaterialItem is one row of a garment's bill of materials. Total is trusted as given.
type MaterialItem struct {
	Name     string       `json:"name"`
	Type     MaterialType `json:"type" validate:"omitempty,oneof=fabric trim supply"`
	Quantity float64      `json:"quantity" validate:"finite,gte=0"`
	UnitCost float64      `json:"unitCost" validate:"finite,gte=0"`
	Total    float64      `json:"total" validate:"finite,gte=0"`
}

// LaborCost splits the per-unit labor of a garment.
type LaborCost struct {
	Labor   float64 `json:"labor" validate:"finite,gte=0"`
	Cutting float64 `json:"cutting" validate:"finite,gte=0"`
	Other   float64 `json:"other" validate:"finite,gte=0"`
}

// SizeSelection marks whether the workshop sells a size for a garment.
type SizeSelection struct {
	IsSelected bool `json:"isSelected"`
}

// LineItem is one garment type within a quote.
type LineItem struct {
	ID                  string                   `json:"id"`
	Name                string                   `json:"name"`
	Quantity            int                      `json:"quantity" validate:"gte=0"`
	MaterialItems       []MaterialItem           `json:"materialItems" validate:"dive"`
	LaborCost           LaborCost                `json:"laborCost"`
	ProfitMarginPercent float64                  `json:"profitMarginPercent" validate:"finite,gte=0"`
	SizePrices          map[string]SizeSelection `json:"sizePrices" validate:"dive,keys,size_label,endkeys"`
}

// Selected reports whether size is offered for this garment.
func (l LineItem) Selected(size string) bool {
	return l.SizePrices[size].IsSelected
}

// Project is a quote owned by a company, holding its line items and consumption aggregate.
type Project struct {
	ID                   string     `json:"id"`
	CompanyID            string     `json:"companyId"`
	Name                 string     `json:"name" validate:"required"`
	ClientName           string     `json:"clientName"`
	Mode                 Mode       `json:"quoteMode" validate:"required,oneof=individual batch"`
	LineItems            []LineItem `json:"lineItems" validate:"dive"`
	TotalFabricLength    float64    `json:"totalFabricLength"`
	TotalFabricCost      float64    `json:"totalFabricCost"`
	ConsumptionUpdatedAt *time.Time `json:"consumptionUpdatedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// BaseGarment returns the first line item, the reference for fabric consumption.
func (p Project) BaseGarment() (LineItem, bool) {
	if len(p.LineItems) == 0 {
		return LineItem{}, false
	}
	return p.LineItems[0], true
}

// FittingSource records who captured a fitting.
type FittingSource string

const (
	SourceStaff FittingSource = "staff"
	SourceLink  FittingSource = "link"
)

// Fitting is one participant's recorded sizing for a project.
type Fitting struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"projectId"`
	PersonName  string            `json:"personName" validate:"required"`
	Sizes       map[string]string `json:"sizes" validate:"dive,keys,required,endkeys,required"`
	Confirmed   bool              `json:"confirmed"`
	ConfirmedAt *time.Time        `json:"confirmedAt,omitempty"`
	Source      FittingSource     `json:"source"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// SizeFor returns the size recorded for garmentID, if any.
func (f Fitting) SizeFor(garmentID string) (string, bool) {
	s, ok := f.Sizes[garmentID]
	return s, ok && s != ""
}

// Company is the owning workshop profile; it carries the tax policy applied to quotes.
type Company struct {
	ID         string  `json:"id"`
	Name       string  `json:"name" validate:"required"`
	TaxPercent float64 `json:"taxPercent" validate:"finite,gte=0,lte=100"`
	Currency   string  `json:"currency" validate:"required,len=3"`
}
