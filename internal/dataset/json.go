package dataset

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed table.schema.json
var tableSchemaJSON string

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

type splitTable struct {
	Columns []string `json:"columns"`
	Index   []any    `json:"index,omitempty"`
	Data    [][]any  `json:"data"`
}

func readJSON(path string) ([]string, [][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode json: %w", err)
	}
	schema, err := loadSchema()
	if err != nil {
		return nil, nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, nil, fmt.Errorf("schema validation failed: %w", err)
	}

	object, _ := value.(map[string]any)
	columns := make([]string, 0)
	for _, column := range object["columns"].([]any) {
		columns = append(columns, column.(string))
	}

	data, _ := object["data"].([]any)
	rows := make([][]string, 0, len(data))
	for _, rawRow := range data {
		cells, _ := rawRow.([]any)
		row := make([]string, len(cells))
		for i, cell := range cells {
			row[i] = cellString(cell)
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

func cellString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func writeJSON(path string, table *Table) error {
	payload := splitTable{Columns: table.Columns, Data: make([][]any, len(table.Rows))}
	for i, row := range table.Rows {
		cells := make([]any, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		payload.Data[i] = cells
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0o644)
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("table.schema.json", strings.NewReader(tableSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("table.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("file contains trailing content")
	}
	return value, nil
}
