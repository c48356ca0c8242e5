package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
)

func readCSV(path string) ([]string, [][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("file is empty")
	}
	return records[0], records[1:], nil
}

func writeCSV(path string, table *Table) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(table.Columns); err != nil {
		file.Close()
		return err
	}
	if err := writer.WriteAll(table.Rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
