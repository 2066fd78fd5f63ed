package tablegrid

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Aggregate declares one summary metric computed over the view.
type Aggregate struct {
	Name      string      `json:"name" yaml:"name" toml:"name"`
	Label     string      `json:"label,omitempty" yaml:"label,omitempty" toml:"label"`
	Func      string      `json:"func" yaml:"func" toml:"func"` // count, count_true, count_equals, sum, avg, min, max
	Field     string      `json:"field,omitempty" yaml:"field,omitempty" toml:"field"`
	Value     interface{} `json:"value,omitempty" yaml:"value,omitempty" toml:"value"` // for count_equals
	Precision *int        `json:"precision,omitempty" yaml:"precision,omitempty" toml:"precision"`
}

func (a Aggregate) validate() error {
	if a.Name == "" {
		return fmt.Errorf("summary aggregate without name")
	}
	switch strings.ToLower(a.Func) {
	case "count":
		return nil
	case "count_true", "count_equals", "sum", "avg", "min", "max":
		if a.Field == "" {
			return fmt.Errorf("summary %s: %s needs a field", a.Name, a.Func)
		}
		return nil
	}
	return fmt.Errorf("summary %s: unknown func %q", a.Name, a.Func)
}

// Metric is one computed summary value.
type Metric struct {
	Name  string  `json:"name"`
	Label string  `json:"label,omitempty"`
	Value float64 `json:"value"`
}

// Summary holds the view totals shown on the dashboard cards.
type Summary struct {
	Total   int      `json:"total"`
	Metrics []Metric `json:"metrics,omitempty"`
}

// Get returns the named metric value.
func (s Summary) Get(name string) (float64, bool) {
	for _, m := range s.Metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// Metric wraps a computed value, rounded to the aggregate's precision.
func (a Aggregate) Metric(v float64) Metric {
	if a.Precision != nil {
		v = round(v, *a.Precision)
	}
	return Metric{Name: a.Name, Label: a.Label, Value: v}
}

func computeSummary(records []Record, aggs []Aggregate) Summary {
	s := Summary{Total: len(records)}
	for _, a := range aggs {
		s.Metrics = append(s.Metrics, a.Metric(aggregateValue(records, a)))
	}
	return s
}

// aggregateValue computes one aggregate over records. Missing or non-numeric
// values count as zero for sum and avg.
func aggregateValue(records []Record, a Aggregate) float64 {
	var sum, min, max float64
	count := 0
	set := false

	for _, rec := range records {
		switch strings.ToLower(a.Func) {
		case "count":
			count++
		case "count_true":
			if b, ok := rec[a.Field].(bool); ok && b {
				count++
			}
		case "count_equals":
			if v, ok := rec[a.Field]; ok && valuesEqual(v, a.Value) {
				count++
			}
		case "sum", "avg":
			f, _ := toFloat(rec[a.Field])
			sum += f
			count++
		case "min", "max":
			f, ok := toFloat(rec[a.Field])
			if !ok {
				continue
			}
			if !set || f < min {
				min = f
			}
			if !set || f > max {
				max = f
			}
			set = true
		}
	}

	switch strings.ToLower(a.Func) {
	case "sum":
		return sum
	case "avg":
		if count > 0 {
			return sum / float64(count)
		}
		return 0
	case "min":
		return min
	case "max":
		return max
	default:
		return float64(count)
	}
}

// round rounds half away from zero to the given number of decimals.
func round(v float64, places int) float64 {
	f, _ := decimal.NewFromFloat(v).Round(int32(places)).Float64()
	return f
}

// Bucket is one distinct value of a breakdown.
type Bucket struct {
	Value   string  `json:"value"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// breakdown groups records by the text of field and reports each group's share,
// ordered by value. Missing values group under "(null)".
func breakdown(records []Record, field string) []Bucket {
	counts := map[string]int{}
	order := []string{}
	for _, rec := range records {
		key := "(null)"
		if v, ok := rec[field]; ok && v != nil {
			key = strings.TrimSpace(formatValue(v))
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	sort.Strings(order)

	out := make([]Bucket, 0, len(order))
	for _, key := range order {
		pct := 0.0
		if len(records) > 0 {
			pct = round(float64(counts[key])*100/float64(len(records)), 1)
		}
		out = append(out, Bucket{Value: key, Count: counts[key], Percent: pct})
	}
	return out
}
