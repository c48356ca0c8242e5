package dataset

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewPadsShortRowsAndDropsBlankOnes(t *testing.T) {
	t.Parallel()

	table, err := New([]string{" id ", "News_Title"}, [][]string{
		{"1", "Bonjour"},
		{"2"},
		{"", "  "},
		{"3", "Hola", ""},
	})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	if table.Columns[0] != "id" {
		t.Fatalf("expected trimmed header, got %q", table.Columns[0])
	}
	if table.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", table.Len())
	}
	if len(table.Rows[1]) != 2 || table.Rows[1][1] != "" {
		t.Fatalf("expected padded row, got %#v", table.Rows[1])
	}
	if len(table.Rows[2]) != 2 {
		t.Fatalf("expected trailing empty cell to be dropped, got %#v", table.Rows[2])
	}
}

func TestNewNamesBlankAndRepeatedHeaders(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header []string
		want   []string
	}{
		{header: []string{"", "News_Title"}, want: []string{"Unnamed: 0", "News_Title"}},
		{header: []string{"a", "a", " a ", "b"}, want: []string{"a", "a.1", "a.2", "b"}},
		{header: []string{"a.1", "a", "a"}, want: []string{"a.1", "a", "a.2"}},
		{header: []string{"", "", "x"}, want: []string{"Unnamed: 0", "Unnamed: 1", "x"}},
	}
	for _, tc := range cases {
		table, err := New(tc.header, nil)
		if err != nil {
			t.Fatalf("header %#v: %v", tc.header, err)
		}
		if strings.Join(table.Columns, "|") != strings.Join(tc.want, "|") {
			t.Fatalf("header %#v: got %#v, want %#v", tc.header, table.Columns, tc.want)
		}
	}
}

func TestNewRejectsBadShapes(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil); err == nil {
		t.Fatalf("expected missing header to be rejected")
	}
	if _, err := New([]string{"a"}, [][]string{{"1", "extra"}}); err == nil {
		t.Fatalf("expected overlong row to be rejected")
	}
}

func TestCloneAndEnsureColumnDoNotTouchOriginal(t *testing.T) {
	t.Parallel()

	original, err := New([]string{"News_Title"}, [][]string{{"Bonjour"}, {"Hola"}})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}

	clone := original.Clone()
	idx := clone.EnsureColumn("Detected_Language")
	clone.Rows[0][idx] = "fr"
	clone.Rows[1][0] = "changed"

	if again := clone.EnsureColumn("Detected_Language"); again != idx {
		t.Fatalf("expected existing column index %d, got %d", idx, again)
	}
	if len(original.Columns) != 1 || len(original.Rows[0]) != 1 || original.Rows[1][0] != "Hola" {
		t.Fatalf("original table was mutated: %#v", original)
	}
	if clone.Rows[0][idx] != "fr" {
		t.Fatalf("unexpected clone record: %#v", clone.Rows[0])
	}
}

func TestMarshalJSONKeepsColumnOrder(t *testing.T) {
	t.Parallel()

	table, err := New([]string{"zeta", "alpha", "News_Title"}, [][]string{{"z", "b", "Привет \"мир\""}})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}

	encoded, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"zeta":"z","alpha":"b","News_Title":"Привет \"мир\""}]`
	if string(encoded) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", encoded, want)
	}

	var empty *Table
	encoded, err = json.Marshal(empty)
	if err != nil {
		t.Fatalf("marshal nil: %v", err)
	}
	if string(encoded) != "null" && string(encoded) != "[]" {
		t.Fatalf("unexpected json for nil table: %s", encoded)
	}
}

func TestMarshalJSONTypesNumericColumns(t *testing.T) {
	t.Parallel()

	table, err := New([]string{"id", "score", "code", "News_Title", "Accuracy"}, [][]string{
		{"1", "0.5", "007", "Bonjour", "98.76%"},
		{"2", "", "0x1F", "2024", "100%"},
		{"3", "1e3", "NaN", "Hola", "87.50%"},
	})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}

	encoded, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"id":1,"score":0.5,"code":"007","News_Title":"Bonjour","Accuracy":"98.76%"},` +
		`{"id":2,"score":null,"code":"0x1F","News_Title":"2024","Accuracy":"100%"},` +
		`{"id":3,"score":1000,"code":"NaN","News_Title":"Hola","Accuracy":"87.50%"}]`
	if string(encoded) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", encoded, want)
	}
}
