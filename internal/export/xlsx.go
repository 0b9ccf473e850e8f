package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// StatusRow is one (document type, state) count on the summary sheet.
type StatusRow struct {
	DocumentType string
	State        string
	Total        int64
	Terminal     bool
}

// BudgetRow is one allocation on the budget sheet.
type BudgetRow struct {
	Code           string
	FiscalYear     int
	Office         string
	Allocated      decimal.Decimal
	Obligated      decimal.Decimal
	Available      decimal.Decimal
	UtilizationPct decimal.Decimal
}

// Summary is the content of the summary workbook.
type Summary struct {
	SchoolName  string
	GeneratedAt time.Time
	Statuses    []StatusRow
	Budgets     []BudgetRow
}

const (
	statusSheet = "Status Summary"
	budgetSheet = "Budget Utilization"
)

// SummaryWorkbook renders s as an XLSX workbook with one sheet per section.
func SummaryWorkbook(s Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", statusSheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(budgetSheet); err != nil {
		return nil, fmt.Errorf("failed to create budget sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"1F4E78"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, fmt.Errorf("failed to create number style: %w", err)
	}

	title := fmt.Sprintf("%s document status as of %s", s.SchoolName, s.GeneratedAt.Format("2006-01-02 15:04"))
	if err := writeTable(f, statusSheet, title, header,
		[]string{"Document Type", "State", "Count", "Terminal"}, len(s.Statuses),
		func(i int) []interface{} {
			r := s.Statuses[i]
			terminal := "no"
			if r.Terminal {
				terminal = "yes"
			}
			return []interface{}{r.DocumentType, r.State, r.Total, terminal}
		}); err != nil {
		return nil, err
	}

	title = fmt.Sprintf("%s budget utilization as of %s", s.SchoolName, s.GeneratedAt.Format("2006-01-02 15:04"))
	if err := writeTable(f, budgetSheet, title, header,
		[]string{"Code", "Fiscal Year", "Office", "Allocated", "Obligated", "Available", "Utilization %"}, len(s.Budgets),
		func(i int) []interface{} {
			r := s.Budgets[i]
			return []interface{}{
				r.Code, r.FiscalYear, r.Office,
				r.Allocated.InexactFloat64(), r.Obligated.InexactFloat64(), r.Available.InexactFloat64(),
				r.UtilizationPct.InexactFloat64(),
			}
		}); err != nil {
		return nil, err
	}
	if len(s.Budgets) > 0 {
		last := len(s.Budgets) + 2
		if err := f.SetCellStyle(budgetSheet, "D3", fmt.Sprintf("G%d", last), money); err != nil {
			return nil, fmt.Errorf("failed to style amounts: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// writeTable puts a title in row 1, a frozen header in row 2 and the rows below.
func writeTable(f *excelize.File, sheet, title string, headerStyle int, columns []string, n int, row func(int) []interface{}) error {
	if err := f.SetCellValue(sheet, "A1", title); err != nil {
		return fmt.Errorf("failed to write title: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A2", &columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	if err := f.SetCellStyle(sheet, "A2", lastCol+"2", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i := 0; i < n; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		values := row(i)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(sheet, "A", lastCol, 22); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      2,
		TopLeftCell: "A3",
		ActivePane:  "bottomLeft",
	})
}
