package tablegrid

import (
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Operator is the comparison a Predicate applies.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpBetween     Operator = "between"
	OpIn          Operator = "in"
)

var operatorAliases = map[string]Operator{
	"equals":       OpEquals,
	"eq":           OpEquals,
	"notequals":    OpNotEquals,
	"not_equals":   OpNotEquals,
	"ne":           OpNotEquals,
	"contains":     OpContains,
	"notcontains":  OpNotContains,
	"not_contains": OpNotContains,
	"startswith":   OpStartsWith,
	"starts":       OpStartsWith,
	"endswith":     OpEndsWith,
	"ends":         OpEndsWith,
	"greaterthan":  OpGreaterThan,
	"gt":           OpGreaterThan,
	"lessthan":     OpLessThan,
	"lt":           OpLessThan,
	"between":      OpBetween,
	"in":           OpIn,
}

// ParseOperator accepts the canonical operator names and the short forms used by
// the advanced search forms ("starts", "not_contains", "gt", ...).
func ParseOperator(s string) (Operator, bool) {
	op, ok := operatorAliases[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

// Condition tags how a predicate would join its neighbour. It is kept with the
// criteria but predicates are always combined with AND.
type Condition string

const (
	CondAnd Condition = "and"
	CondOr  Condition = "or"
)

// Predicate is one structured filter condition.
type Predicate struct {
	Field     string        `json:"field" yaml:"field" toml:"field"`
	Operator  Operator      `json:"operator" yaml:"operator" toml:"operator"`
	Value     interface{}   `json:"value,omitempty" yaml:"value,omitempty" toml:"value"`
	Min       interface{}   `json:"min,omitempty" yaml:"min,omitempty" toml:"min"`
	Max       interface{}   `json:"max,omitempty" yaml:"max,omitempty" toml:"max"`
	Values    []interface{} `json:"values,omitempty" yaml:"values,omitempty" toml:"values"`
	Condition Condition     `json:"condition,omitempty" yaml:"condition,omitempty" toml:"condition"`
}

// FilterCriteria combines a free-text term with structured predicates.
type FilterCriteria struct {
	Text       string      `json:"text,omitempty" yaml:"text,omitempty" toml:"text"`
	Predicates []Predicate `json:"predicates,omitempty" yaml:"predicates,omitempty" toml:"predicates"`
}

// IsZero reports whether the criteria select every record.
func (c FilterCriteria) IsZero() bool {
	return strings.TrimSpace(c.Text) == "" && len(c.Predicates) == 0
}

// Validate rejects predicates that cannot be evaluated.
func (c FilterCriteria) Validate() error {
	fields := map[string]string{}
	for i, p := range c.Predicates {
		key := fmt.Sprintf("predicates[%d]", i)
		if strings.TrimSpace(p.Field) == "" {
			fields[key] = "field is required"
			continue
		}
		if _, ok := ParseOperator(string(p.Operator)); !ok {
			fields[key] = fmt.Sprintf("unknown operator %q", p.Operator)
			continue
		}
		switch p.Condition {
		case "", CondAnd, CondOr:
		default:
			fields[key] = fmt.Sprintf("unknown condition %q", p.Condition)
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Match evaluates the predicate against one record.
func (p Predicate) Match(rec Record) bool {
	op, _ := ParseOperator(string(p.Operator))
	v, present := rec[p.Field]
	if !present {
		v = nil
	}

	switch op {
	case OpEquals:
		return present && valuesEqual(v, p.Value)
	case OpNotEquals:
		return !present || !valuesEqual(v, p.Value)
	case OpContains:
		return present && strings.Contains(lower(v), lower(p.Value))
	case OpNotContains:
		return !present || !strings.Contains(lower(v), lower(p.Value))
	case OpStartsWith:
		return present && strings.HasPrefix(lower(v), lower(p.Value))
	case OpEndsWith:
		return present && strings.HasSuffix(lower(v), lower(p.Value))
	case OpGreaterThan, OpLessThan:
		a, okA := toFloat(v)
		b, okB := toFloat(p.Value)
		if !okA || !okB {
			return false
		}
		if op == OpGreaterThan {
			return a > b
		}
		return a < b
	case OpBetween:
		a, ok := toFloat(v)
		if !ok {
			return false
		}
		if p.Min != nil {
			lo, ok := toFloat(p.Min)
			if ok && a < lo {
				return false
			}
		}
		if p.Max != nil {
			hi, ok := toFloat(p.Max)
			if ok && a > hi {
				return false
			}
		}
		return true
	case OpIn:
		if !present {
			return false
		}
		for _, candidate := range p.Values {
			if valuesEqual(v, candidate) {
				return true
			}
		}
		return false
	}
	return false
}

func lower(v interface{}) string {
	return strings.ToLower(formatValue(v))
}

// valuesEqual compares a record value with a literal: booleans as booleans,
// numbers numerically, everything else as lowercased text.
func valuesEqual(a, b interface{}) bool {
	if ab, ok := a.(bool); ok {
		bb, ok := toBool(b)
		return ok && ab == bb
	}
	if isNumber(a) {
		fa, _ := toFloat(a)
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return lower(a) == lower(b)
}

func matchAll(rec Record, preds []Predicate) bool {
	for _, p := range preds {
		if !p.Match(rec) {
			return false
		}
	}
	return true
}

// matchText reports whether any of fields contains term (already lowercased and
// trimmed). In fuzzy mode the term only has to appear as a subsequence.
func matchText(rec Record, fields []string, term string, mode TextMatch) bool {
	if len(fields) == 0 {
		for f := range rec {
			fields = append(fields, f)
		}
	}
	for _, f := range fields {
		text := rec.Text(f)
		if mode == TextFuzzy {
			if fuzzy.MatchFold(term, text) {
				return true
			}
			continue
		}
		if strings.Contains(strings.ToLower(text), term) {
			return true
		}
	}
	return false
}

// QuickFilter is a named preset behind a summary card or filter chip.
// AboveAverage selects records whose field exceeds the source average.
type QuickFilter struct {
	Name         string      `json:"name" yaml:"name" toml:"name"`
	Label        string      `json:"label,omitempty" yaml:"label,omitempty" toml:"label"`
	Predicates   []Predicate `json:"predicates,omitempty" yaml:"predicates,omitempty" toml:"predicates"`
	AboveAverage string      `json:"above_average,omitempty" yaml:"above_average,omitempty" toml:"above_average"`
}
