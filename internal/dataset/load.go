package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrLoad matches every *LoadError.
var ErrLoad = errors.New("dataset could not be loaded")

// LoadError reports a table that could not be read or written.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load dataset: %v", e.Err)
	}
	return fmt.Sprintf("load dataset %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}

func newLoadError(path string, err error) error {
	return &LoadError{Path: path, Err: err}
}

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// DetectFormat maps a file name to one of the supported formats.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported file format %q (expected .xlsx, .xlsm, .csv or .json)", filepath.Ext(path))
	}
}

// Load reads the whole file at path into memory.
func Load(path string) (*Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, newLoadError(path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, newLoadError(path, err)
	}
	if info.IsDir() {
		return nil, newLoadError(path, fmt.Errorf("path is a directory"))
	}

	var (
		columns []string
		rows    [][]string
	)
	switch format {
	case FormatXLSX:
		columns, rows, err = readXLSX(path)
	case FormatCSV:
		columns, rows, err = readCSV(path)
	case FormatJSON:
		columns, rows, err = readJSON(path)
	}
	if err != nil {
		return nil, newLoadError(path, err)
	}

	table, err := New(columns, rows)
	if err != nil {
		return nil, newLoadError(path, err)
	}
	return table, nil
}

// Save writes table to path in the format implied by its extension.
func Save(path string, table *Table) error {
	if table == nil {
		return newLoadError(path, fmt.Errorf("table is nil"))
	}
	format, err := DetectFormat(path)
	if err != nil {
		return newLoadError(path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return newLoadError(path, err)
		}
	}

	switch format {
	case FormatXLSX:
		err = writeXLSX(path, table)
	case FormatCSV:
		err = writeCSV(path, table)
	case FormatJSON:
		err = writeJSON(path, table)
	}
	if err != nil {
		return newLoadError(path, err)
	}
	return nil
}
