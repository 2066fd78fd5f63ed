package seedsource

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/gnemet/tablegrid"
	"github.com/lib/pq"
)

// rowAlias names the source table inside list queries so the whole row can be
// searched as text.
const rowAlias = "src"

func isTextColumn(c tablegrid.Column) bool {
	return c.Type == "" || c.Type == "text" || c.Type == "string"
}

// BuildWhere turns the search term and query filters into a WHERE clause with
// positional arguments, matching the in-memory grid: text compares without case,
// numbers and booleans by value. Filters on undeclared columns are dropped.
func BuildWhere(def *tablegrid.Definition, p tablegrid.RequestParams) (string, []interface{}, error) {
	clauses := []string{}
	args := []interface{}{}
	argIdx := 1

	for _, pred := range p.Predicates(def) {
		col, _ := def.Column(pred.Field)
		name, err := quoteQualified(pred.Field)
		if err != nil {
			return "", nil, err
		}

		switch pred.Operator {
		case tablegrid.OpIn:
			target := name
			if isTextColumn(col) {
				target = fmt.Sprintf("lower(%s::text)", name)
			}
			var params []string
			for _, v := range pred.Values {
				params = append(params, fmt.Sprintf("$%d", argIdx))
				args = append(args, typedArg(col, v))
				argIdx++
			}
			if len(params) > 0 {
				clauses = append(clauses, fmt.Sprintf("%s IN (%s)", target, strings.Join(params, ", ")))
			}
		case tablegrid.OpBetween:
			// a bound that is not a number is ignored
			if lo, ok := numberArg(pred.Min); ok {
				clauses = append(clauses, fmt.Sprintf("%s >= $%d", name, argIdx))
				args = append(args, lo)
				argIdx++
			}
			if hi, ok := numberArg(pred.Max); ok {
				clauses = append(clauses, fmt.Sprintf("%s <= $%d", name, argIdx))
				args = append(args, hi)
				argIdx++
			}
		}
	}

	if term := strings.TrimSpace(p.Search); term != "" {
		var ors []string
		for _, f := range def.SearchFields() {
			name, err := quoteQualified(f)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, fmt.Sprintf("%s::text ILIKE $%d", name, argIdx))
		}
		if len(ors) == 0 {
			ors = append(ors, fmt.Sprintf("%s::text ILIKE $%d", rowAlias, argIdx))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
		args = append(args, likePattern(term, def.TextMatch))
		argIdx++
	}

	if len(clauses) == 0 {
		return "", args, nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args, nil
}

// typedArg converts a query-string value by the column type. Text is lowered to
// pair with lower(column).
func typedArg(c tablegrid.Column, v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch c.Type {
	case "number":
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
		return s
	case "boolean":
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
		return s
	}
	return strings.ToLower(s)
}

func numberArg(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// likePattern builds the ILIKE pattern for term. Fuzzy matching only needs the
// characters of term in order.
func likePattern(term string, mode tablegrid.TextMatch) string {
	if mode != tablegrid.TextFuzzy {
		return "%" + escapeLike(term) + "%"
	}
	parts := make([]string, 0, len(term))
	for _, r := range term {
		parts = append(parts, escapeLike(string(r)))
	}
	return "%" + strings.Join(parts, "%") + "%"
}

// BuildOrder returns the ORDER BY clause for the active sort: the first valid
// requested column, else the definition default. Text sorts without case,
// missing values come first ascending, and ties keep id order.
func BuildOrder(def *tablegrid.Definition, sorts []string) string {
	id := pq.QuoteIdentifier(tablegrid.IDField)
	st := tablegrid.RequestParams{Sort: sorts}.SortState(def)
	if st.Column == "" || st.Column == tablegrid.IDField || !identPattern.MatchString(st.Column) {
		if st.Column == tablegrid.IDField && st.Direction == tablegrid.Descending {
			return "ORDER BY " + id + " DESC"
		}
		return "ORDER BY " + id + " ASC"
	}

	expr := pq.QuoteIdentifier(st.Column)
	if c, ok := def.Column(st.Column); ok && isTextColumn(c) {
		expr = fmt.Sprintf("lower(%s::text)", expr)
	}
	if st.Direction == tablegrid.Descending {
		return fmt.Sprintf("ORDER BY %s DESC NULLS LAST, %s ASC", expr, id)
	}
	return fmt.Sprintf("ORDER BY %s ASC NULLS FIRST, %s ASC", expr, id)
}

// BuildTotals returns the select list computing the row count and one value per
// summary aggregate, with argument numbering starting at argStart. avg yields the
// sum; the caller divides by the row count so missing values count as zero.
func BuildTotals(def *tablegrid.Definition, argStart int) (string, []interface{}, error) {
	exprs := []string{"COUNT(*)"}
	args := []interface{}{}
	argIdx := argStart

	for _, a := range def.Summary {
		fn := strings.ToLower(a.Func)
		if fn == "count" {
			exprs = append(exprs, "COUNT(*)::float8")
			continue
		}
		name, err := quoteQualified(a.Field)
		if err != nil {
			return "", nil, err
		}
		switch fn {
		case "count_true":
			exprs = append(exprs, fmt.Sprintf("COUNT(*) FILTER (WHERE %s IS TRUE)::float8", name))
		case "count_equals":
			switch v := a.Value.(type) {
			case bool, int, int64, float64:
				exprs = append(exprs, fmt.Sprintf("COUNT(*) FILTER (WHERE %s = $%d)::float8", name, argIdx))
				args = append(args, v)
			default:
				exprs = append(exprs, fmt.Sprintf("COUNT(*) FILTER (WHERE lower(%s::text) = $%d)::float8", name, argIdx))
				args = append(args, strings.ToLower(fmt.Sprint(v)))
			}
			argIdx++
		case "sum", "avg":
			exprs = append(exprs, fmt.Sprintf("COALESCE(SUM(%s), 0)::float8", name))
		case "min":
			exprs = append(exprs, fmt.Sprintf("MIN(%s)::float8", name))
		case "max":
			exprs = append(exprs, fmt.Sprintf("MAX(%s)::float8", name))
		default:
			return "", nil, fmt.Errorf("summary %s: unknown func %q", a.Name, a.Func)
		}
	}
	return strings.Join(exprs, ", "), args, nil
}

// Fetch answers a list request directly against the source table: the filtered
// totals plus one window of rows, without building a grid in memory. A page past
// the end falls back to the first page.
func (s *Source) Fetch(ctx context.Context, def *tablegrid.Definition, p tablegrid.RequestParams) (*tablegrid.TableResult, error) {
	if def.Source == nil || def.Source.Table == "" {
		return nil, fmt.Errorf("definition %s has no source table", def.Name)
	}
	table, err := quoteQualified(def.Source.Table)
	if err != nil {
		return nil, err
	}
	from := table + " AS " + rowAlias
	where, args, err := BuildWhere(def, p)
	if err != nil {
		return nil, err
	}
	totals, totalArgs, err := BuildTotals(def, len(args)+1)
	if err != nil {
		return nil, err
	}

	var total int
	values := make([]sql.NullFloat64, len(def.Summary))
	dest := []interface{}{&total}
	for i := range values {
		dest = append(dest, &values[i])
	}
	totalsQuery := fmt.Sprintf("SELECT %s FROM %s %s", totals, from, where)
	if err := s.db.QueryRowContext(ctx, totalsQuery, append(append([]interface{}{}, args...), totalArgs...)...).Scan(dest...); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	summary := tablegrid.Summary{Total: total}
	for i, a := range def.Summary {
		v := values[i].Float64
		if strings.EqualFold(a.Func, "avg") {
			v = 0
			if total > 0 {
				v = values[i].Float64 / float64(total)
			}
		}
		summary.Metrics = append(summary.Metrics, a.Metric(v))
	}

	limit := p.Limit
	if limit < 1 {
		limit = tablegrid.DefaultPageSize
	}
	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	page := p.Offset/limit + 1
	if page < 1 || page > totalPages {
		page = 1
	}
	offset := (page - 1) * limit

	fields := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		fields = append(fields, c.Field)
	}
	cols, err := selectColumns(fields)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s %s %s LIMIT %d OFFSET %d",
		cols, from, where, BuildOrder(def, p.Sort), limit, offset)
	records, err := s.QueryDirect(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &tablegrid.TableResult{
		Records:    records,
		TotalCount: total,
		Offset:     offset,
		Limit:      limit,
		Page:       page,
		TotalPages: totalPages,
		StartIndex: offset,
		EndIndex:   offset + len(records),
		Sort:       p.SortState(def),
		Criteria:   p.Criteria(def),
		Selected:   []int{},
		Selection:  tablegrid.SelectionNone,
		Summary:    summary,
		Columns:    def.Columns,
	}, nil
}
