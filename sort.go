package tablegrid

import (
	"sort"
	"strings"
)

// Direction is the order of the active sort column.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection maps "asc"/"desc" in any case; anything else is ascending.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), "desc") {
		return Descending
	}
	return Ascending
}

// SortState is the single active sort column. An empty Column means unsorted.
type SortState struct {
	Column    string    `json:"column,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

// Next returns the state after a click on column: the same column flips,
// a new column starts ascending.
func (s SortState) Next(column string) SortState {
	if s.Column == column {
		if s.Direction == Ascending {
			return SortState{Column: column, Direction: Descending}
		}
		return SortState{Column: column, Direction: Ascending}
	}
	return SortState{Column: column, Direction: Ascending}
}

// sortRecords orders records in place by the state. Ties keep their relative order.
func sortRecords(records []Record, s SortState) {
	if s.Column == "" {
		return
	}
	desc := s.Direction == Descending
	sort.SliceStable(records, func(i, j int) bool {
		c := compareValues(records[i][s.Column], records[j][s.Column])
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// kind ranks value types so mixed columns still order deterministically:
// missing < bool < number < text.
func kind(v interface{}) int {
	switch {
	case v == nil:
		return 0
	case isBool(v):
		return 1
	case isNumber(v):
		return 2
	default:
		return 3
	}
}

func isBool(v interface{}) bool {
	_, ok := v.(bool)
	return ok
}

// compareValues compares strings case-insensitively, numbers numerically and
// booleans with false before true.
func compareValues(a, b interface{}) int {
	ka, kb := kind(a), kind(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch ka {
	case 0:
		return 0
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(strings.ToLower(formatValue(a)), strings.ToLower(formatValue(b)))
}
