// Package report renders quotes and fitting rosters for clients and the workshop floor.
package report

import (
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Simplici0/taller/internal/pricing"
	"github.com/Simplici0/taller/internal/quote"
)

var modeLabels = map[quote.Mode]string{
	quote.ModeIndividual: "Individual",
	quote.ModeBatch:      "Por lote",
}

// QuoteText writes a plain-text Spanish summary of a priced project.
func QuoteText(w io.Writer, project quote.Project, company quote.Company, totals pricing.Totals) error {
	p := message.NewPrinter(language.Spanish)
	ew := &errWriter{w: w}

	ew.printf(p, "Cotización: %s\n", project.Name)
	if project.ClientName != "" {
		ew.printf(p, "Cliente: %s\n", project.ClientName)
	}
	ew.printf(p, "Taller: %s\n", company.Name)
	ew.printf(p, "Modalidad: %s\n", modeLabels[project.Mode])
	ew.printf(p, "Impuesto: %v%%\n\n", company.TaxPercent)

	for _, item := range totals.LineItems {
		ew.printf(p, "%s (cantidad %d)\n", item.Name, item.Quantity)
		ew.printf(p, "  Costo unitario: %.2f %s\n", item.CostPerUnit, company.Currency)
		ew.printf(p, "  Precio base: %d %s\n", item.BasePricePerUnit, company.Currency)
		for _, sp := range item.SizePrices {
			if !sp.Selected {
				continue
			}
			ew.printf(p, "    Talla %-8s %d\n", sp.Size, sp.Price)
		}
		ew.printf(p, "\n")
	}

	ew.printf(p, "Costo total: %.2f %s\n", totals.TotalCost, company.Currency)
	ew.printf(p, "Impuestos: %.2f %s\n", totals.TotalTax, company.Currency)
	ew.printf(p, "Utilidad: %.2f %s\n", totals.TotalProfit, company.Currency)
	if totals.Estimated {
		ew.printf(p, "Total estimado*: %.2f %s\n", totals.GrandTotal, company.Currency)
		ew.printf(p, "* Aproximado: en modalidad individual cada persona elige su talla.\n")
	} else {
		ew.printf(p, "Total: %.2f %s\n", totals.GrandTotal, company.Currency)
	}

	if project.ConsumptionUpdatedAt != nil {
		ew.printf(p, "\nConsumo de tela: %.2f m (%.2f %s)\n",
			project.TotalFabricLength, project.TotalFabricCost, company.Currency)
	}
	if ew.err != nil {
		return fmt.Errorf("write quote text: %w", ew.err)
	}
	return nil
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(p *message.Printer, format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = p.Fprintf(e.w, format, args...)
}
