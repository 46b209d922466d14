package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/Simplici0/taller/internal/quote"
	"github.com/Simplici0/taller/internal/sizes"
)

const fittingsSheet = "Pruebas"

// FittingsWorkbook builds a roster with one row per participant and one column per garment.
// Garments a participant has no size for show the default size.
func FittingsWorkbook(project quote.Project, fittings []quote.Fitting) (*excelize.File, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(fittingsSheet)
	if err != nil {
		return nil, fmt.Errorf("create fittings sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	header := []any{"Participante"}
	for _, item := range project.LineItems {
		header = append(header, item.Name)
	}
	header = append(header, "Confirmada", "Origen")
	if err := f.SetSheetRow(fittingsSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, fitting := range fittings {
		row := []any{fitting.PersonName}
		for _, item := range project.LineItems {
			size, ok := fitting.SizeFor(item.ID)
			if !ok {
				size = sizes.Default
			}
			row = append(row, size)
		}
		confirmed := "No"
		if fitting.Confirmed {
			confirmed = "Sí"
		}
		row = append(row, confirmed, string(fitting.Source))

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(fittingsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write fitting %s: %w", fitting.ID, err)
		}
	}

	summaryCell, err := excelize.CoordinatesToCellName(1, len(fittings)+3)
	if err != nil {
		return nil, err
	}
	summary := []any{"Tela total (m)", project.TotalFabricLength}
	if err := f.SetSheetRow(fittingsSheet, summaryCell, &summary); err != nil {
		return nil, fmt.Errorf("write fabric summary: %w", err)
	}

	return f, nil
}

// WriteFittingsWorkbook streams the roster as XLSX.
func WriteFittingsWorkbook(w io.Writer, project quote.Project, fittings []quote.Fitting) error {
	f, err := FittingsWorkbook(project, fittings)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write fittings workbook: %w", err)
	}
	return nil
}
