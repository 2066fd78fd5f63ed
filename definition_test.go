package tablegrid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const yamlDefinition = `
name: transaction_order_class
title: Transaction Order Class
filter_mode: compose
searchable_columns: [orderClass, object]
defaults:
  page_size: 7
  sort_column: orderClass
columns:
  - field: orderClass
    label: Order Class
    labels: {en: Order Class, hu: Rendelési osztály}
    type: text
    sortable: true
    visible: true
    required: true
  - field: object
    type: text
    sortable: true
    visible: true
  - field: status
    type: text
    sortable: true
    visible: true
    required: true
    options:
      - {value: active, label: Active}
      - {value: inactive, label: Inactive}
quick_filters:
  - name: active
    predicates:
      - {field: status, operator: equals, value: active}
seed:
  - {id: 1, orderClass: Counter Sales, object: Invoices, status: active}
  - {id: 2, orderClass: Customer Order, object: Orders, status: inactive}
`

const jsonDefinition = `{
  "name": "parties",
  "columns": [
    {"field": "name", "type": "text", "sortable": true, "visible": true, "required": true},
    {"field": "creditLimit", "type": "number", "sortable": true, "visible": true, "validate": "gte=0"}
  ],
  "summary": [{"name": "total", "func": "sum", "field": "creditLimit"}],
  "seed": [{"id": 1, "name": "Acme", "creditLimit": 1000}]
}`

const tomlDefinition = `
name = "release_notes"
read_only = true
text_match = "fuzzy"

[[columns]]
field = "version"
type = "text"
sortable = true
visible = true

[[columns]]
field = "notes"
type = "text"
visible = true

[[seed]]
id = 1
version = "1.0.0"
notes = "First release"
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinition([]byte(yamlDefinition), "yaml")
	if err != nil {
		t.Fatalf("ParseDefinition failed: %v", err)
	}
	if def.Name != "transaction_order_class" || def.FilterMode != FilterCompose {
		t.Errorf("Unexpected definition header: %s %s", def.Name, def.FilterMode)
	}
	if len(def.Columns) != 3 || len(def.Seed) != 2 || len(def.QuickFilters) != 1 {
		t.Errorf("Unexpected sizes: %d columns, %d seed, %d quick filters", len(def.Columns), len(def.Seed), len(def.QuickFilters))
	}
	col, _ := def.Column("orderClass")
	if got := col.DisplayLabel("hu"); got != "Rendelési osztály" {
		t.Errorf("Expected hu label, got %q", got)
	}
	if got := col.DisplayLabel("de"); got != "Order Class" {
		t.Errorf("Expected en fallback, got %q", got)
	}
	obj, _ := def.Column("object")
	if got := obj.DisplayLabel("en"); got != "object" {
		t.Errorf("Expected field name fallback, got %q", got)
	}

	g := New(def)
	if g.PageSize() != 7 {
		t.Errorf("Expected page size 7, got %d", g.PageSize())
	}
	if err := g.ApplyQuickFilter("active"); err != nil {
		t.Fatal(err)
	}
	if ids := g.ViewIDs(); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("Expected [1], got %v", ids)
	}
}

func TestParseDefinitionJSON(t *testing.T) {
	def, err := ParseDefinition([]byte(jsonDefinition), "json")
	if err != nil {
		t.Fatalf("ParseDefinition failed: %v", err)
	}
	g := New(def)
	if v, _ := g.Summary().Get("total"); v != 1000 {
		t.Errorf("Expected total 1000, got %v", v)
	}
	if _, err := g.Create(Record{"name": "Bad", "creditLimit": -1}); err == nil {
		t.Error("Expected negative credit limit to be rejected")
	}
}

func TestParseDefinitionTOML(t *testing.T) {
	def, err := ParseDefinition([]byte(tomlDefinition), "toml")
	if err != nil {
		t.Fatalf("ParseDefinition failed: %v", err)
	}
	if !def.ReadOnly || def.TextMatch != TextFuzzy {
		t.Errorf("Unexpected flags: read_only=%v text_match=%s", def.ReadOnly, def.TextMatch)
	}
	g := New(def)
	if ids := g.ViewIDs(); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("Expected seed id 1, got %v", ids)
	}
}

func TestParseDefinitionErrors(t *testing.T) {
	cases := []struct {
		name, format, data, want string
	}{
		{"missing name", "json", `{"columns": []}`, "schema"},
		{"bad filter mode", "json", `{"name": "x", "filter_mode": "merge"}`, "schema"},
		{"bad column type", "yaml", "name: x\ncolumns:\n  - field: a\n    type: date\n", "schema"},
		{"bad aggregate", "json", `{"name": "x", "summary": [{"name": "s", "func": "median"}]}`, "schema"},
		{"duplicate column", "json", `{"name": "x", "columns": [{"field": "a"}, {"field": "a"}]}`, "duplicate column"},
		{"undeclared searchable", "json", `{"name": "x", "columns": [{"field": "a"}], "searchable_columns": ["b"]}`, "not declared"},
		{"aggregate without field", "json", `{"name": "x", "summary": [{"name": "s", "func": "sum"}]}`, "needs a field"},
		{"bad quick filter operator", "json", `{"name": "x", "quick_filters": [{"name": "q", "predicates": [{"field": "a", "operator": "like"}]}]}`, "unknown operator"},
		{"malformed json", "json", `{"name":`, "parse definition"},
		{"unknown format", "ini", `name=x`, "unsupported"},
	}
	for _, tc := range cases {
		_, err := ParseDefinition([]byte(tc.data), tc.format)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestLoadDefinition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.yml")
	if err := os.WriteFile(path, []byte(yamlDefinition), 0o644); err != nil {
		t.Fatal(err)
	}
	def, err := LoadDefinition(path)
	if err != nil {
		t.Fatalf("LoadDefinition failed: %v", err)
	}
	if def.Name != "transaction_order_class" {
		t.Errorf("Expected transaction_order_class, got %s", def.Name)
	}
	if _, err := LoadDefinition(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestBuilderValidates(t *testing.T) {
	if _, err := NewDefinition("").Build(); err == nil {
		t.Error("Expected error for empty name")
	}
	if _, err := NewDefinition("x").Text("a", "A").Searchable("b").Build(); err == nil {
		t.Error("Expected error for undeclared searchable column")
	}
	if _, err := NewDefinition("x").FilterMode("merge").Build(); err == nil {
		t.Error("Expected error for unknown filter mode")
	}
	if _, err := NewDefinition("x").PageSize(-1).Build(); err == nil {
		t.Error("Expected error for negative page size")
	}
}

func TestSearchFields(t *testing.T) {
	def, err := NewDefinition("x").Text("a", "A").Number("n", "N").Bool("b", "B").
		Column(Column{Field: "s"}).Build()
	if err != nil {
		t.Fatal(err)
	}
	got := def.SearchFields()
	if strings.Join(got, ",") != "a,s" {
		t.Errorf("Expected text columns a,s; got %v", got)
	}
	def.Searchable = []string{"n"}
	if got := def.SearchFields(); len(got) != 1 || got[0] != "n" {
		t.Errorf("Expected explicit list, got %v", got)
	}
}

func TestDefinitionSchemaIsEmbedded(t *testing.T) {
	if !strings.Contains(string(DefinitionSchema()), "searchable_columns") {
		t.Error("Embedded schema looks wrong")
	}
}
