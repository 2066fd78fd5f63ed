package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gnemet/tablegrid"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var (
		format  string
		search  string
		sortArg string
		filters []string
		quick   string
		lang    string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "export <page|definition-file>",
		Short: "Export a page's records as CSV or XLSX after optional filtering",
		Long: `Export a page's records as CSV or XLSX after optional filtering.

Filters apply in the order quick, filter, search. Pages whose filter mode is
replace keep only the last of them; compose pages combine them.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := resolveDefinition(args[0])
			if err != nil {
				return err
			}
			g := tablegrid.New(def)

			if quick != "" {
				if err := g.ApplyQuickFilter(quick); err != nil {
					return fmt.Errorf("quick filter %s: %w", quick, err)
				}
			}
			if len(filters) > 0 {
				c, err := parseFilters(filters)
				if err != nil {
					return err
				}
				c.Predicates = append(g.Criteria().Predicates, c.Predicates...)
				if err := g.ApplyStructuredFilter(c); err != nil {
					return err
				}
			}
			if search != "" {
				g.ApplyTextFilter(search)
			}
			if sortArg != "" {
				col, dir, _ := strings.Cut(sortArg, ":")
				if !g.SetSort(col, tablegrid.ParseDirection(dir)) {
					return fmt.Errorf("column %q is not sortable", col)
				}
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			columns := def.ExportColumns(lang)
			switch strings.ToLower(format) {
			case "csv":
				_, err = fmt.Fprintln(w, g.ExportCSV(columns))
			case "xlsx":
				err = g.ExportXLSX(w, columns)
			default:
				err = fmt.Errorf("unsupported format %q (csv, xlsx)", format)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "Output format: csv or xlsx")
	cmd.Flags().StringVar(&search, "search", "", "Free-text search term")
	cmd.Flags().StringVar(&sortArg, "sort", "", "Sort as field:asc or field:desc")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "Predicate as field:operator:value (repeatable)")
	cmd.Flags().StringVar(&quick, "quick", "", "Apply a named quick filter first")
	cmd.Flags().StringVar(&lang, "lang", "en", "Language for headers and option labels")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write to file instead of stdout")
	return cmd
}

// parseFilters reads field:operator:value triples. For between the value is
// min..max; for in it is a comma separated list.
func parseFilters(raw []string) (tablegrid.FilterCriteria, error) {
	var c tablegrid.FilterCriteria
	for _, f := range raw {
		parts := strings.SplitN(f, ":", 3)
		if len(parts) != 3 {
			return c, fmt.Errorf("invalid filter %q, want field:operator:value", f)
		}
		op, ok := tablegrid.ParseOperator(parts[1])
		if !ok {
			return c, fmt.Errorf("invalid filter %q: unknown operator %s", f, parts[1])
		}
		p := tablegrid.Predicate{Field: parts[0], Operator: op}
		switch op {
		case tablegrid.OpBetween:
			lo, hi, _ := strings.Cut(parts[2], "..")
			if lo != "" {
				p.Min = lo
			}
			if hi != "" {
				p.Max = hi
			}
		case tablegrid.OpIn:
			for _, v := range strings.Split(parts[2], ",") {
				p.Values = append(p.Values, v)
			}
		default:
			p.Value = parts[2]
		}
		c.Predicates = append(c.Predicates, p)
	}
	return c, nil
}
