// Package seedsource loads grid seeds from PostgreSQL tables.
package seedsource

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gnemet/tablegrid"
	"github.com/lib/pq"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Source reads seed records from a database.
type Source struct {
	db *sql.DB
}

// Open connects and tunes the underlying pool.
func Open(connStr string, maxConns int, idleTimeout, absTimeout time.Duration) (*Source, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(absTimeout)
	db.SetConnMaxIdleTime(idleTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Source{db: db}, nil
}

// NewFromDB wraps an existing connection pool.
func NewFromDB(db *sql.DB) *Source {
	return &Source{db: db}
}

// Close closes the pool.
func (s *Source) Close() error {
	return s.db.Close()
}

// quoteQualified quotes a possibly schema-qualified identifier.
func quoteQualified(name string) (string, error) {
	parts := strings.Split(name, ".")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		if !identPattern.MatchString(p) {
			return "", fmt.Errorf("invalid identifier %q", name)
		}
		quoted[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(quoted, "."), nil
}

// selectColumns renders the projection: the id column plus every declared
// column, or * when none are declared.
func selectColumns(columns []string) (string, error) {
	if len(columns) == 0 {
		return "*", nil
	}
	cols := []string{pq.QuoteIdentifier(tablegrid.IDField)}
	for _, c := range columns {
		if c == tablegrid.IDField {
			continue
		}
		q, err := quoteQualified(c)
		if err != nil {
			return "", err
		}
		cols = append(cols, q)
	}
	return strings.Join(cols, ", "), nil
}

// BuildSelectQuery builds the seed query for a table: the id column plus every
// declared column, ordered by id so the seed keeps a stable order.
func BuildSelectQuery(table string, columns []string) (string, error) {
	t, err := quoteQualified(table)
	if err != nil {
		return "", err
	}
	cols, err := selectColumns(columns)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", cols, t, pq.QuoteIdentifier(tablegrid.IDField)), nil
}

// Load reads the seed for def from its source table.
func (s *Source) Load(ctx context.Context, def *tablegrid.Definition) ([]tablegrid.Record, error) {
	if def.Source == nil || def.Source.Table == "" {
		return nil, fmt.Errorf("definition %s has no source table", def.Name)
	}
	fields := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		fields = append(fields, c.Field)
	}
	query, err := BuildSelectQuery(def.Source.Table, fields)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	records, err := s.QueryDirect(ctx, query)
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded seed", "grid", def.Name, "table", def.Source.Table, "rows", len(records), "elapsed", time.Since(start))
	return records, nil
}

// QueryDirect runs a query and returns its rows as records.
func (s *Source) QueryDirect(ctx context.Context, query string, args ...interface{}) ([]tablegrid.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("direct query failed: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]tablegrid.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	results := []tablegrid.Record{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		pointers := make([]interface{}, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(tablegrid.Record, len(cols))
		for i, col := range cols {
			row[col] = scalar(values[i], types[i].DatabaseTypeName())
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// scalar converts a driver value to one of the record scalar types.
func scalar(v interface{}, dbType string) interface{} {
	switch val := v.(type) {
	case []byte:
		s := string(val)
		if isNumericType(dbType) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	case time.Time:
		return val.Format(time.RFC3339)
	case int64:
		return int(val)
	default:
		return val
	}
}

func isNumericType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "NUMERIC", "DECIMAL", "FLOAT4", "FLOAT8", "MONEY":
		return true
	}
	return false
}
