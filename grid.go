package tablegrid

import (
	"log/slog"
	"sort"
	"strings"
)

// DefaultPageSize is used when neither the caller nor the definition sets one.
const DefaultPageSize = 10

// Grid owns a source collection and derives the filtered, sorted and paged view
// from it. Every operation runs to completion and leaves the grid consistent.
// A Grid is not safe for concurrent use; callers serialise access.
type Grid struct {
	def      *Definition
	source   []Record
	view     []Record
	text     string
	preds    []Predicate
	sort     SortState
	page     int
	pageSize int
	selected map[int]struct{}
	lastID   int
	summary  Summary
	logger   *slog.Logger
}

// GridOption configures a Grid.
type GridOption func(*Grid)

// WithLogger sets the logger mutations are reported to.
func WithLogger(l *slog.Logger) GridOption {
	return func(g *Grid) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a grid for def, seeded from def.Seed with the definition's page size
// and default sort.
func New(def *Definition, opts ...GridOption) *Grid {
	if def == nil {
		def = &Definition{}
	}
	g := &Grid{def: def, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	g.Initialize(def.Seed, def.Defaults.PageSize)
	return g
}

// Definition returns the page configuration the grid was built with.
func (g *Grid) Definition() *Definition {
	return g.def
}

// Initialize replaces the source with a copy of seed and resets filters, paging
// and selection. The sort returns to the definition default. Seed records without
// an id get the next free one.
func (g *Grid) Initialize(seed []Record, pageSize int) {
	g.source = cloneRecords(seed)
	g.lastID = 0
	for _, rec := range g.source {
		if id, ok := rec.ID(); ok && id > g.lastID {
			g.lastID = id
		}
	}
	for _, rec := range g.source {
		if _, ok := rec.ID(); !ok {
			g.lastID++
			rec[IDField] = g.lastID
		}
	}

	if pageSize < 1 {
		pageSize = g.def.Defaults.PageSize
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	g.pageSize = pageSize
	g.text = ""
	g.preds = nil
	g.sort = SortState{}
	if g.def.Defaults.SortColumn != "" {
		g.sort = SortState{Column: g.def.Defaults.SortColumn, Direction: ParseDirection(g.def.Defaults.SortDirection)}
	}
	g.page = 1
	g.selected = make(map[int]struct{})
	g.refresh()
}

// refresh rebuilds the view from the source and the current criteria and sort.
func (g *Grid) refresh() {
	term := strings.ToLower(strings.TrimSpace(g.text))
	fields := g.def.SearchFields()

	view := make([]Record, 0, len(g.source))
	for _, rec := range g.source {
		if !matchAll(rec, g.preds) {
			continue
		}
		if term != "" && !matchText(rec, fields, term, g.def.TextMatch) {
			continue
		}
		view = append(view, rec)
	}
	sortRecords(view, g.sort)

	g.view = view
	g.summary = computeSummary(view, g.def.Summary)
	if g.page > g.TotalPages() {
		g.page = g.TotalPages()
	}
	if g.page < 1 {
		g.page = 1
	}
}

// filterChanged is the common tail of every filter operation.
func (g *Grid) filterChanged() {
	g.page = 1
	g.selected = make(map[int]struct{})
	g.refresh()
}

// ApplyTextFilter sets the free-text term. A blank term matches everything.
func (g *Grid) ApplyTextFilter(term string) {
	if g.def.filterMode() == FilterReplace {
		g.preds = nil
	}
	g.text = term
	g.filterChanged()
}

// ApplyStructuredFilter sets the structured predicates. Criteria are validated
// before anything changes.
func (g *Grid) ApplyStructuredFilter(c FilterCriteria) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if g.def.filterMode() == FilterReplace || c.Text != "" {
		g.text = c.Text
	}
	g.preds = append([]Predicate(nil), c.Predicates...)
	g.filterChanged()
	return nil
}

// ApplyQuickFilter applies a named preset from the definition. Like a summary
// card click it also clears the search term.
func (g *Grid) ApplyQuickFilter(name string) error {
	var qf *QuickFilter
	for i := range g.def.QuickFilters {
		if g.def.QuickFilters[i].Name == name {
			qf = &g.def.QuickFilters[i]
			break
		}
	}
	if qf == nil {
		return ErrUnknownQuickFilter
	}

	preds := append([]Predicate(nil), qf.Predicates...)
	if qf.AboveAverage != "" {
		preds = append(preds, Predicate{Field: qf.AboveAverage, Operator: OpGreaterThan, Value: g.sourceAverage(qf.AboveAverage)})
	}
	c := FilterCriteria{Predicates: preds}
	if err := c.Validate(); err != nil {
		return err
	}
	g.text = ""
	g.preds = preds
	g.filterChanged()
	return nil
}

// sourceAverage is the average of field over the source, rounded like the
// definition's avg card on that field when there is one.
func (g *Grid) sourceAverage(field string) float64 {
	avg := aggregateValue(g.source, Aggregate{Func: "avg", Field: field})
	for _, a := range g.def.Summary {
		if strings.EqualFold(a.Func, "avg") && a.Field == field {
			return a.Metric(avg).Value
		}
	}
	return avg
}

// ClearFilters drops the text term and all predicates.
func (g *Grid) ClearFilters() {
	g.text = ""
	g.preds = nil
	g.filterChanged()
}

// Criteria returns the filter currently in effect.
func (g *Grid) Criteria() FilterCriteria {
	return FilterCriteria{Text: g.text, Predicates: append([]Predicate(nil), g.preds...)}
}

// SortBy toggles sorting on column: the active column flips direction, any other
// column becomes active ascending. The view is reordered in place; page and
// selection are kept. Columns the definition marks unsortable are ignored.
func (g *Grid) SortBy(column string) bool {
	if column == "" || !g.def.sortable(column) {
		return false
	}
	g.sort = g.sort.Next(column)
	sortRecords(g.view, g.sort)
	return true
}

// SetSort sets the sort state directly.
func (g *Grid) SetSort(column string, dir Direction) bool {
	if column == "" || !g.def.sortable(column) {
		return false
	}
	g.sort = SortState{Column: column, Direction: dir}
	sortRecords(g.view, g.sort)
	return true
}

// Sort returns the active sort state.
func (g *Grid) Sort() SortState {
	return g.sort
}

// TotalPages is ceil(len(view)/pageSize), never less than one.
func (g *Grid) TotalPages() int {
	n := (len(g.view) + g.pageSize - 1) / g.pageSize
	if n < 1 {
		return 1
	}
	return n
}

// Page returns the current 1-based page.
func (g *Grid) Page() int {
	return g.page
}

// PageSize returns the current page size.
func (g *Grid) PageSize() int {
	return g.pageSize
}

// GoToPage moves to page. Out-of-range pages are ignored and false is returned.
func (g *Grid) GoToPage(page int) bool {
	if page < 1 || page > g.TotalPages() {
		return false
	}
	g.page = page
	return true
}

// SetPageSize changes the page size and returns to the first page.
func (g *Grid) SetPageSize(size int) error {
	if size < 1 {
		return &ValidationError{Fields: map[string]string{"page_size": "must be at least 1"}}
	}
	g.pageSize = size
	g.page = 1
	return nil
}

// Create appends a record with the next free id, keeps the current filter and
// sort, moves to the page showing the record and returns its id.
func (g *Grid) Create(fields Record) (int, error) {
	if g.def.ReadOnly {
		return 0, ErrReadOnly
	}
	rec := fields.Clone()
	delete(rec, IDField)
	normalize(rec)
	if err := validateRecord(g.def, rec); err != nil {
		return 0, err
	}

	id := g.nextID()
	rec[IDField] = id
	g.source = append(g.source, rec)
	g.refresh()
	if idx := g.viewIndex(id); idx >= 0 {
		g.page = idx/g.pageSize + 1
	}

	g.logger.Debug("record created", "grid", g.def.Name, "id", id)
	return id, nil
}

// nextID is one more than the largest id ever held, so deleted ids are not reused.
func (g *Grid) nextID() int {
	for _, rec := range g.source {
		if id, ok := rec.ID(); ok && id > g.lastID {
			g.lastID = id
		}
	}
	g.lastID++
	return g.lastID
}

func (g *Grid) sourceIndex(id int) int {
	for i, rec := range g.source {
		if rid, ok := rec.ID(); ok && rid == id {
			return i
		}
	}
	return -1
}

func (g *Grid) viewIndex(id int) int {
	for i, rec := range g.view {
		if rid, ok := rec.ID(); ok && rid == id {
			return i
		}
	}
	return -1
}

// Update merges fields into the record with id. An unknown id is a no-op that
// returns false. The id itself cannot be changed.
func (g *Grid) Update(id int, fields Record) (bool, error) {
	if g.def.ReadOnly {
		return false, ErrReadOnly
	}
	i := g.sourceIndex(id)
	if i < 0 {
		return false, nil
	}

	merged := g.source[i].Clone()
	for k, v := range fields {
		if k == IDField {
			continue
		}
		merged[k] = v
	}
	normalize(merged)
	if err := validateRecord(g.def, merged); err != nil {
		return false, err
	}

	g.source[i] = merged
	g.refresh()
	g.logger.Debug("record updated", "grid", g.def.Name, "id", id)
	return true, nil
}

// DeleteMany removes every record whose id is in ids, clears the selection and
// returns the number removed. An empty id list is rejected.
func (g *Grid) DeleteMany(ids []int) (int, error) {
	if g.def.ReadOnly {
		return 0, ErrReadOnly
	}
	if len(ids) == 0 {
		return 0, emptySelection()
	}

	drop := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := g.source[:0:0]
	for _, rec := range g.source {
		if id, ok := rec.ID(); ok {
			if _, hit := drop[id]; hit {
				continue
			}
		}
		kept = append(kept, rec)
	}
	removed := len(g.source) - len(kept)
	g.source = kept
	g.selected = make(map[int]struct{})
	g.refresh()

	g.logger.Debug("records deleted", "grid", g.def.Name, "requested", len(ids), "removed", removed)
	return removed, nil
}

// DeleteSelected deletes the selected records.
func (g *Grid) DeleteSelected() (int, error) {
	return g.DeleteMany(g.Selected())
}

// Delete removes one record; false means the id was not found.
func (g *Grid) Delete(id int) (bool, error) {
	n, err := g.DeleteMany([]int{id})
	return n == 1, err
}

// Find returns a copy of the record with id.
func (g *Grid) Find(id int) (Record, bool) {
	i := g.sourceIndex(id)
	if i < 0 {
		return nil, false
	}
	return g.source[i].Clone(), true
}

// ToggleSelection marks or unmarks one record. Ids not in the source are ignored.
func (g *Grid) ToggleSelection(id int, selected bool) {
	if !selected {
		delete(g.selected, id)
		return
	}
	if g.sourceIndex(id) >= 0 {
		g.selected[id] = struct{}{}
	}
}

// SelectAllVisible marks or unmarks every record on the current page only.
func (g *Grid) SelectAllVisible(selected bool) {
	for _, rec := range g.pageRecords() {
		id, ok := rec.ID()
		if !ok {
			continue
		}
		if selected {
			g.selected[id] = struct{}{}
		} else {
			delete(g.selected, id)
		}
	}
}

// Selected returns the selected ids in ascending order.
func (g *Grid) Selected() []int {
	ids := make([]int, 0, len(g.selected))
	for id := range g.selected {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// IsSelected reports whether id is selected.
func (g *Grid) IsSelected(id int) bool {
	_, ok := g.selected[id]
	return ok
}

// SelectionState describes the header checkbox for the current page.
type SelectionState string

const (
	SelectionNone SelectionState = "none"
	SelectionSome SelectionState = "some"
	SelectionAll  SelectionState = "all"
)

// SelectionState reports whether none, some or all records on the page are selected.
func (g *Grid) SelectionState() SelectionState {
	recs := g.pageRecords()
	n := 0
	for _, rec := range recs {
		if id, ok := rec.ID(); ok && g.IsSelected(id) {
			n++
		}
	}
	switch {
	case n == 0:
		return SelectionNone
	case n == len(recs):
		return SelectionAll
	default:
		return SelectionSome
	}
}

func (g *Grid) bounds() (int, int) {
	total := len(g.view)
	if total == 0 {
		return 0, 0
	}
	start := (g.page - 1) * g.pageSize
	end := start + g.pageSize
	if end > total {
		end = total
	}
	return start, end
}

func (g *Grid) pageRecords() []Record {
	start, end := g.bounds()
	return g.view[start:end]
}

// PageSlice is the current page of the view plus the numbers a pager needs.
type PageSlice struct {
	Records    []Record `json:"records"`
	StartIndex int      `json:"start_index"`
	EndIndex   int      `json:"end_index"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// PageSlice returns copies of the records on the current page.
func (g *Grid) PageSlice() PageSlice {
	start, end := g.bounds()
	return PageSlice{
		Records:    cloneRecords(g.view[start:end]),
		StartIndex: start,
		EndIndex:   end,
		TotalCount: len(g.view),
		Page:       g.page,
		PageSize:   g.pageSize,
		TotalPages: g.TotalPages(),
	}
}

// View returns copies of every record in the filtered, sorted view.
func (g *Grid) View() []Record {
	return cloneRecords(g.view)
}

// ViewIDs returns the ids of the view in order.
func (g *Grid) ViewIDs() []int {
	ids := make([]int, 0, len(g.view))
	for _, rec := range g.view {
		if id, ok := rec.ID(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Source returns copies of every record in source order.
func (g *Grid) Source() []Record {
	return cloneRecords(g.source)
}

// Summary returns the aggregates of the current view. It is recomputed only when
// the view contents change, not on paging or sorting.
func (g *Grid) Summary() Summary {
	s := g.summary
	s.Metrics = append([]Metric(nil), g.summary.Metrics...)
	return s
}

// Breakdown groups the view by field for distribution charts.
func (g *Grid) Breakdown(field string) []Bucket {
	return breakdown(g.view, field)
}
