package salary

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Salaries"

var headers = []any{"Teacher", "Salary per class", "Transportation fee", "Classes", "Days present", "Total"}

// WriteXLSX renders lines as a single-sheet workbook.
func WriteXLSX(w io.Writer, month string, lines []Line) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	if month != "" {
		if err := f.SetDocProps(&excelize.DocProperties{Title: "Payroll " + month}); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return err
	}
	for i, l := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{l.TeacherName, l.SalaryPerClass, l.TransportationFee, l.Classes, l.DaysPresent, l.Total()}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheetName, "A", "A", 24); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
