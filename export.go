package tablegrid

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportColumn is one output column: a header and how to render a record's cell.
type ExportColumn struct {
	Header string
	Value  func(Record) interface{}
}

// FieldColumn exports a field as-is.
func FieldColumn(header, field string) ExportColumn {
	return ExportColumn{Header: header, Value: func(r Record) interface{} { return r[field] }}
}

// ExportColumns derives export columns from the visible columns of the definition,
// applying each column's format.
func (d *Definition) ExportColumns(lang string) []ExportColumn {
	cols := []ExportColumn{}
	for _, c := range d.Columns {
		if !c.Visible {
			continue
		}
		c := c
		cols = append(cols, ExportColumn{
			Header: c.DisplayLabel(lang),
			Value:  func(r Record) interface{} { return FormatCell(c, r[c.Field], lang) },
		})
	}
	return cols
}

// FormatCell renders a value per the column format: "yesno" for booleans,
// a printf verb such as "%.2f", the option label in lang, or the plain text form.
func FormatCell(c Column, v interface{}, lang string) string {
	switch {
	case c.Format == "yesno":
		if b, ok := toBool(v); ok {
			if b {
				return "Yes"
			}
			return "No"
		}
	case strings.Contains(c.Format, "%"):
		if f, ok := toFloat(v); ok && isNumber(v) {
			return fmt.Sprintf(c.Format, f)
		}
	}
	for _, o := range c.Options {
		if v != nil && valuesEqual(v, o.Value) {
			return o.DisplayLabel(lang)
		}
	}
	return formatValue(v)
}

// ExportCSV renders the whole view (not just the current page) as CSV: header row
// first, every field double-quoted with embedded quotes doubled, rows joined by "\n".
func (g *Grid) ExportCSV(columns []ExportColumn) string {
	rows := make([]string, 0, len(g.view)+1)
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = quoteCSV(c.Header)
	}
	rows = append(rows, strings.Join(header, ","))

	for _, rec := range g.view {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = quoteCSV(formatValue(c.Value(rec)))
		}
		rows = append(rows, strings.Join(cells, ","))
	}
	return strings.Join(rows, "\n")
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ExportSheet is the worksheet name used by ExportXLSX.
const ExportSheet = "Data"

// ExportXLSX writes the view as an Excel workbook with a single "Data" sheet.
// Numbers and booleans are written as typed cells.
func (g *Grid) ExportXLSX(w io.Writer, columns []ExportColumn) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, c := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(ExportSheet, cell, c.Header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for r, rec := range g.view {
		for i, c := range columns {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(ExportSheet, cell, c.Value(rec)); err != nil {
				return fmt.Errorf("write row %d: %w", r+1, err)
			}
		}
	}
	if len(columns) > 0 {
		last, err := excelize.ColumnNumberToName(len(columns))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(ExportSheet, "A", last, 15); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
