package seedsource

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/gnemet/tablegrid"
	"github.com/joho/godotenv"
)

func TestBuildSelectQuery(t *testing.T) {
	q, err := BuildSelectQuery("datagrid.order_class", []string{"description", "lead_time", "id"})
	if err != nil {
		t.Fatalf("BuildSelectQuery failed: %v", err)
	}
	expected := `SELECT "id", "description", "lead_time" FROM "datagrid"."order_class" ORDER BY "id"`
	if q != expected {
		t.Errorf("Expected '%s', got '%s'", expected, q)
	}

	q, err = BuildSelectQuery("parties", nil)
	if err != nil {
		t.Fatalf("BuildSelectQuery failed: %v", err)
	}
	if q != `SELECT * FROM "parties" ORDER BY "id"` {
		t.Errorf("Unexpected query for no columns: %s", q)
	}
}

func TestBuildSelectQueryRejectsInjection(t *testing.T) {
	if _, err := BuildSelectQuery("orders; DROP TABLE x", nil); err == nil {
		t.Errorf("Expected error for invalid table name")
	}
	if _, err := BuildSelectQuery("orders", []string{"name) FROM pg_user --"}); err == nil {
		t.Errorf("Expected error for invalid column name")
	}
}

func TestScalar(t *testing.T) {
	if v := scalar([]byte("12.50"), "NUMERIC"); v != 12.5 {
		t.Errorf("Expected 12.5, got %v", v)
	}
	if v := scalar([]byte("abc"), "TEXT"); v != "abc" {
		t.Errorf("Expected 'abc', got %v", v)
	}
	if v := scalar(int64(7), "INT8"); v != 7 {
		t.Errorf("Expected 7, got %v", v)
	}
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if v := scalar(ts, "TIMESTAMPTZ"); v != "2024-05-01T10:00:00Z" {
		t.Errorf("Expected RFC3339 timestamp, got %v", v)
	}
	if v := scalar(true, "BOOL"); v != true {
		t.Errorf("Expected true, got %v", v)
	}
}

func TestLoadRequiresSource(t *testing.T) {
	s := &Source{}
	_, err := s.Load(context.Background(), &tablegrid.Definition{Name: "orders"})
	if err == nil {
		t.Errorf("Expected error for definition without source")
	}
}

func TestIntegrationLoad(t *testing.T) {
	_ = godotenv.Load("../../.env")

	host := os.Getenv("DB_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	user := os.Getenv("DB_USER")
	if user == "" {
		user = "postgres"
	}
	dbname := os.Getenv("DB_NAME")
	if dbname == "" {
		dbname = "postgres"
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, os.Getenv("DB_PASSWORD"), dbname)

	src, err := Open(connStr, 2, time.Minute, time.Hour)
	if err != nil {
		t.Skip("Postgres not reachable, skipping integration test:", err)
		return
	}
	defer src.Close()

	ctx := context.Background()
	if _, err := src.QueryDirect(ctx, `CREATE TABLE seed_orders (id int, description text, discount numeric)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	defer src.QueryDirect(ctx, `DROP TABLE seed_orders`)

	if _, err := src.QueryDirect(ctx, `INSERT INTO seed_orders VALUES (2, 'Counter Sales', 1.5), (1, 'Customer Order', 0)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	def := &tablegrid.Definition{
		Name:    "seed_orders",
		Columns: []tablegrid.Column{{Field: "description"}, {Field: "discount", Type: "number"}},
		Source:  &tablegrid.Source{Table: "seed_orders"},
	}
	recs, err := src.Load(ctx, def)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
	if id, _ := recs[0].ID(); id != 1 {
		t.Errorf("Expected records ordered by id, first id %d", id)
	}
	if recs[1]["discount"] != 1.5 {
		t.Errorf("Expected numeric discount 1.5, got %v", recs[1]["discount"])
	}

	res, err := src.Fetch(ctx, def, tablegrid.RequestParams{Sort: []string{"id:desc"}, Search: "sales", Limit: 1})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.TotalCount != 1 || len(res.Records) != 1 {
		t.Fatalf("Expected one matching row, got total %d rows %d", res.TotalCount, len(res.Records))
	}
	if res.Records[0]["description"] != "Counter Sales" {
		t.Errorf("Expected 'Counter Sales', got %v", res.Records[0]["description"])
	}

	def.Summary = []tablegrid.Aggregate{{Name: "avgDiscount", Func: "avg", Field: "discount"}}
	res, err = src.Fetch(ctx, def, tablegrid.RequestParams{Search: "SALES", Offset: 1000, Limit: 1})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Page != 1 || res.StartIndex != 0 || len(res.Records) != 1 {
		t.Errorf("Expected an out-of-range offset to stay on page 1, got page %d start %d rows %d", res.Page, res.StartIndex, len(res.Records))
	}
	if avg, _ := res.Summary.Get("avgDiscount"); avg != 1.5 {
		t.Errorf("Expected average discount 1.5, got %v", avg)
	}
	if res.Criteria.Text != "SALES" {
		t.Errorf("Expected criteria to echo the search, got %+v", res.Criteria)
	}
}
