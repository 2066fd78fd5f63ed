package seedsource

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/gnemet/tablegrid"
	"github.com/google/go-cmp/cmp"
)

func orderDef() *tablegrid.Definition {
	return &tablegrid.Definition{
		Name: "order_class",
		Columns: []tablegrid.Column{
			{Field: "description", Type: "text", Sortable: true},
			{Field: "orderClass", Type: "text", Sortable: true},
			{Field: "leadTime", Type: "number", Sortable: true},
			{Field: "isActive", Type: "boolean"},
		},
		Source: &tablegrid.Source{Table: "datagrid.order_class"},
	}
}

func params(t *testing.T, rawQuery string) tablegrid.RequestParams {
	t.Helper()
	u, err := url.Parse("http://example.com/list?" + rawQuery)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return tablegrid.ParseParams(&http.Request{URL: u}, nil)
}

func TestBuildWhere(t *testing.T) {
	def := orderDef()

	where, args, err := BuildWhere(def, params(t, "search=john"))
	if err != nil {
		t.Fatalf("BuildWhere failed: %v", err)
	}
	expected := `WHERE ("description"::text ILIKE $1 OR "orderClass"::text ILIKE $1)`
	if where != expected {
		t.Errorf("Expected '%s', got '%s'", expected, where)
	}
	if diff := cmp.Diff([]interface{}{"%john%"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildWhereFilters(t *testing.T) {
	def := orderDef()

	where, args, err := BuildWhere(def, params(t, "isActive=true&orderClass=Sales%20Order&min_leadTime=2&max_leadTime=5&unknown=x&search=50%25"))
	if err != nil {
		t.Fatalf("BuildWhere failed: %v", err)
	}
	expected := `WHERE "isActive" IN ($1) AND lower("orderClass"::text) IN ($2) AND "leadTime" >= $3 AND "leadTime" <= $4 AND ("description"::text ILIKE $5 OR "orderClass"::text ILIKE $5)`
	if where != expected {
		t.Errorf("Expected '%s', got '%s'", expected, where)
	}
	want := []interface{}{true, "sales order", 2.0, 5.0, `%50\%%`}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildWhereIgnoresNonNumericBound(t *testing.T) {
	where, args, err := BuildWhere(orderDef(), params(t, "min_leadTime=soon&max_leadTime=9"))
	if err != nil {
		t.Fatalf("BuildWhere failed: %v", err)
	}
	if where != `WHERE "leadTime" <= $1` {
		t.Errorf("Unexpected clause '%s'", where)
	}
	if diff := cmp.Diff([]interface{}{9.0}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildWhereWholeRowSearch(t *testing.T) {
	def := &tablegrid.Definition{Name: "notes", Source: &tablegrid.Source{Table: "notes"}}

	where, args, err := BuildWhere(def, params(t, "search=+Draft+"))
	if err != nil {
		t.Fatalf("BuildWhere failed: %v", err)
	}
	if where != `WHERE (src::text ILIKE $1)` {
		t.Errorf("Expected whole-row search, got '%s'", where)
	}
	if diff := cmp.Diff([]interface{}{"%Draft%"}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildWhereFuzzy(t *testing.T) {
	def := orderDef()
	def.TextMatch = tablegrid.TextFuzzy

	_, args, err := BuildWhere(def, params(t, "search=c_s"))
	if err != nil {
		t.Fatalf("BuildWhere failed: %v", err)
	}
	if diff := cmp.Diff([]interface{}{`%c%\_%s%`}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildWhereEmpty(t *testing.T) {
	where, args, err := BuildWhere(orderDef(), params(t, "limit=5"))
	if err != nil {
		t.Fatalf("BuildWhere failed: %v", err)
	}
	if where != "" || len(args) != 0 {
		t.Errorf("Expected no clause, got '%s' %v", where, args)
	}
}

func TestBuildOrder(t *testing.T) {
	def := orderDef()

	tests := []struct {
		name  string
		sorts []string
		want  string
	}{
		{"none", nil, `ORDER BY "id" ASC`},
		{"text descending", []string{"description:desc"}, `ORDER BY lower("description"::text) DESC NULLS LAST, "id" ASC`},
		{"first valid entry wins", []string{"orderClass:asc,leadTime:DESC"}, `ORDER BY lower("orderClass"::text) ASC NULLS FIRST, "id" ASC`},
		{"unsortable dropped", []string{"isActive:asc", "description:asc"}, `ORDER BY lower("description"::text) ASC NULLS FIRST, "id" ASC`},
		{"injection dropped", []string{"description; DROP TABLE x:asc"}, `ORDER BY "id" ASC`},
		{"id descending", []string{"id:desc"}, `ORDER BY "id" DESC`},
		{"number with bad direction", []string{"leadTime:sideways"}, `ORDER BY "leadTime" ASC NULLS FIRST, "id" ASC`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildOrder(def, tt.sorts); got != tt.want {
				t.Errorf("Expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}

func TestBuildOrderDefault(t *testing.T) {
	def := orderDef()
	def.Defaults.SortColumn = "leadTime"
	def.Defaults.SortDirection = "DESC"

	if got := BuildOrder(def, nil); got != `ORDER BY "leadTime" DESC NULLS LAST, "id" ASC` {
		t.Errorf("Expected default sort, got '%s'", got)
	}
	if got := BuildOrder(def, []string{"description:asc"}); got != `ORDER BY lower("description"::text) ASC NULLS FIRST, "id" ASC` {
		t.Errorf("Expected requested sort to win, got '%s'", got)
	}
}

func TestBuildTotals(t *testing.T) {
	one := 1
	def := orderDef()
	def.Summary = []tablegrid.Aggregate{
		{Name: "all", Func: "count"},
		{Name: "active", Func: "count_true", Field: "isActive"},
		{Name: "sales", Func: "count_equals", Field: "orderClass", Value: "Sales Order"},
		{Name: "fast", Func: "count_equals", Field: "leadTime", Value: 0},
		{Name: "avgLeadTime", Func: "avg", Field: "leadTime", Precision: &one},
		{Name: "minLeadTime", Func: "min", Field: "leadTime"},
		{Name: "maxLeadTime", Func: "max", Field: "leadTime"},
	}

	got, args, err := BuildTotals(def, 3)
	if err != nil {
		t.Fatalf("BuildTotals failed: %v", err)
	}
	expected := `COUNT(*), COUNT(*)::float8, ` +
		`COUNT(*) FILTER (WHERE "isActive" IS TRUE)::float8, ` +
		`COUNT(*) FILTER (WHERE lower("orderClass"::text) = $3)::float8, ` +
		`COUNT(*) FILTER (WHERE "leadTime" = $4)::float8, ` +
		`COALESCE(SUM("leadTime"), 0)::float8, MIN("leadTime")::float8, MAX("leadTime")::float8`
	if got != expected {
		t.Errorf("Expected '%s', got '%s'", expected, got)
	}
	if diff := cmp.Diff([]interface{}{"sales order", 0}, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	def.Summary = []tablegrid.Aggregate{{Name: "x", Func: "sum", Field: "a; DROP TABLE y"}}
	if _, _, err := BuildTotals(def, 1); err == nil {
		t.Error("Expected error for invalid field name")
	}
}
