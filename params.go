package tablegrid

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// RequestParams captures search, sort, filters and paging from a list request.
type RequestParams struct {
	Search  string
	Sort    []string // list of "field:dir"
	Filters map[string][]string
	Limit   int
	Offset  int
}

// TableResult is what a list request returns to the rendering layer.
type TableResult struct {
	Records    []Record       `json:"records"`
	TotalCount int            `json:"total_count"`
	Offset     int            `json:"offset"`
	Limit      int            `json:"limit"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	StartIndex int            `json:"start_index"`
	EndIndex   int            `json:"end_index"`
	Sort       SortState      `json:"sort"`
	Criteria   FilterCriteria `json:"criteria"`
	Selected   []int          `json:"selected"`
	Selection  SelectionState `json:"selection"`
	Summary    Summary        `json:"summary"`
	Columns    []Column       `json:"columns"`
}

var reservedParams = map[string]bool{
	"search": true, "sort": true, "limit": true, "offset": true, "page": true, "_": true,
}

// ParseParams reads list parameters from the query string. The page size falls
// back to the definition default, then to DefaultPageSize.
func ParseParams(r *http.Request, def *Definition) RequestParams {
	q := r.URL.Query()
	limit := 0
	if l := q.Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}
	if limit < 1 && def != nil {
		limit = def.Defaults.PageSize
	}
	if limit < 1 {
		limit = DefaultPageSize
	}

	offset := 0
	if o := q.Get("offset"); o != "" {
		fmt.Sscanf(o, "%d", &offset)
	} else if p := q.Get("page"); p != "" {
		page := 0
		fmt.Sscanf(p, "%d", &page)
		if page > 1 {
			offset = (page - 1) * limit
		}
	}
	if offset < 0 {
		offset = 0
	}

	filters := make(map[string][]string)
	for key, values := range q {
		if !reservedParams[key] {
			filters[key] = values
		}
	}

	return RequestParams{
		Search:  q.Get("search"),
		Sort:    q["sort"],
		Filters: filters,
		Limit:   limit,
		Offset:  offset,
	}
}

// Predicates turns query filters into predicates. A declared column becomes an
// "in" over its values; min_<field> and max_<field> become a between range.
// Unknown keys are dropped.
func (p RequestParams) Predicates(def *Definition) []Predicate {
	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var preds []Predicate
	ranges := map[string]*Predicate{}
	rangeOrder := []string{}
	for _, key := range keys {
		values := nonEmpty(p.Filters[key])
		if len(values) == 0 {
			continue
		}
		field, bound := key, ""
		if strings.HasPrefix(key, "min_") {
			field, bound = strings.TrimPrefix(key, "min_"), "min"
		} else if strings.HasPrefix(key, "max_") {
			field, bound = strings.TrimPrefix(key, "max_"), "max"
		}
		if _, ok := def.Column(field); !ok {
			continue
		}

		if bound == "" {
			in := Predicate{Field: field, Operator: OpIn}
			for _, v := range values {
				in.Values = append(in.Values, v)
			}
			preds = append(preds, in)
			continue
		}
		rp, ok := ranges[field]
		if !ok {
			rp = &Predicate{Field: field, Operator: OpBetween}
			ranges[field] = rp
			rangeOrder = append(rangeOrder, field)
		}
		if bound == "min" {
			rp.Min = values[0]
		} else {
			rp.Max = values[0]
		}
	}
	for _, field := range rangeOrder {
		preds = append(preds, *ranges[field])
	}
	return preds
}

func nonEmpty(values []string) []string {
	out := []string{}
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseSort returns the first valid "field:dir" entry. Comma separated lists and
// repeated parameters are both accepted; the grid keeps one active column.
func parseSort(def *Definition, sorts []string) (string, Direction, bool) {
	var all []string
	for _, s := range sorts {
		all = append(all, strings.Split(s, ",")...)
	}
	for _, s := range all {
		parts := strings.Split(s, ":")
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		if !def.sortable(parts[0]) {
			continue
		}
		return parts[0], ParseDirection(parts[1]), true
	}
	return "", "", false
}

// SortState resolves the requested sort: the first valid "field:dir" entry, or
// the definition default.
func (p RequestParams) SortState(def *Definition) SortState {
	if col, dir, ok := parseSort(def, p.Sort); ok {
		return SortState{Column: col, Direction: dir}
	}
	if def.Defaults.SortColumn != "" {
		return SortState{Column: def.Defaults.SortColumn, Direction: ParseDirection(def.Defaults.SortDirection)}
	}
	return SortState{}
}

// Criteria returns the filter a list request applies.
func (p RequestParams) Criteria(def *Definition) FilterCriteria {
	return FilterCriteria{Text: p.Search, Predicates: p.Predicates(def)}
}

// Query answers a stateless list request against seed: it builds a throwaway grid,
// applies the request and returns the requested window.
func Query(def *Definition, seed []Record, p RequestParams) *TableResult {
	g := New(def)
	g.Initialize(seed, p.Limit)
	g.text = p.Search
	g.preds = p.Predicates(def)
	g.sort = p.SortState(def)
	g.refresh()
	g.GoToPage(p.Offset/g.pageSize + 1)

	return g.Result()
}

// Result snapshots the grid for the rendering layer.
func (g *Grid) Result() *TableResult {
	ps := g.PageSlice()
	return &TableResult{
		Records:    ps.Records,
		TotalCount: ps.TotalCount,
		Offset:     ps.StartIndex,
		Limit:      ps.PageSize,
		Page:       ps.Page,
		TotalPages: ps.TotalPages,
		StartIndex: ps.StartIndex,
		EndIndex:   ps.EndIndex,
		Sort:       g.sort,
		Criteria:   g.Criteria(),
		Selected:   g.Selected(),
		Selection:  g.SelectionState(),
		Summary:    g.Summary(),
		Columns:    g.def.Columns,
	}
}
