package dataset

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// readXLSX reads the first sheet; its first row is the header. Cells past
// the last header cell get blank header names.
func readXLSX(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}
	header := rows[0]
	for _, row := range rows[1:] {
		for len(header) < len(row) {
			header = append(header, "")
		}
	}
	return header, rows[1:], nil
}

func writeXLSX(path string, table *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSheetRow(f, 1, table.Columns); err != nil {
		return err
	}
	for i, row := range table.Rows {
		if err := writeSheetRow(f, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSheetRow(f *excelize.File, rowNumber int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNumber)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(cells))
	for i, value := range cells {
		values[i] = value
	}
	if err := f.SetSheetRow(defaultSheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", rowNumber, err)
	}
	return nil
}
