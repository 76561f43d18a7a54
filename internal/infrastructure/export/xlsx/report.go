package xlsx

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

const (
	sheetName   = "Expedientes"
	contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var headers = []string{
	"Case ID",
	"File",
	"State",
	"Verdict",
	"Title",
	"Debtor",
	"Creditor",
	"Amount",
	"Resolution Date",
	"Enforceability Date",
	"Observations",
	"Fallback",
	"Created At",
	"Updated At",
}

// verdictFills colours the State cell by traffic light.
var verdictFills = map[string]string{
	string(domain.LightGreen):  "C6EFCE",
	string(domain.LightYellow): "FFEB9C",
	string(domain.LightRed):    "FFC7CE",
}

// Renderer lays case records out as a single-sheet XLSX workbook.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) ContentType() string {
	return contentType
}

func (r *Renderer) Render(ctx context.Context, cases []domain.CaseRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheetName, "A1", lastHeader, headerStyle)

	fills := make(map[string]int, len(verdictFills))
	for state, color := range verdictFills {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		})
		if err != nil {
			return nil, fmt.Errorf("state style: %w", err)
		}
		fills[state] = style
	}

	for i, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		state := c.LegacyState()
		var details domain.VerdictDetails
		if c.Details != nil {
			details = *c.Details
		}
		verdict := ""
		if c.Verdict != nil {
			verdict = string(*c.Verdict)
		}
		title := ""
		if c.Title != nil {
			title = *c.Title
		}

		write(1, c.ID)
		write(2, c.FilePath)
		write(3, state)
		write(4, verdict)
		write(5, title)
		write(6, details.DebtorName)
		write(7, details.CreditorEntity)
		write(8, details.Amount)
		write(9, details.ResolutionDate)
		write(10, details.EnforceabilityDate)
		write(11, c.Observations)
		write(12, c.VerdictFallback)
		write(13, c.CreatedAt.UTC().Format(time.RFC3339))
		write(14, c.UpdatedAt.UTC().Format(time.RFC3339))

		if style, ok := fills[state]; ok {
			cell, _ := excelize.CoordinatesToCellName(3, row)
			_ = f.SetCellStyle(sheetName, cell, cell, style)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38) // id
	_ = f.SetColWidth(sheetName, "B", "B", 40) // file
	_ = f.SetColWidth(sheetName, "C", "E", 18)
	_ = f.SetColWidth(sheetName, "F", "H", 26)
	_ = f.SetColWidth(sheetName, "I", "J", 18)
	_ = f.SetColWidth(sheetName, "K", "K", 60) // observations
	_ = f.SetColWidth(sheetName, "M", "N", 22)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
