package tablegrid

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/definition.schema.json
var definitionSchema []byte

// DefinitionSchema returns the JSON Schema page definitions are validated against.
func DefinitionSchema() []byte {
	return definitionSchema
}

// FilterMode decides how the text filter and the structured filter interact.
type FilterMode string

const (
	// FilterReplace makes a text search drop structured predicates and vice versa.
	FilterReplace FilterMode = "replace"
	// FilterCompose applies structured predicates first, then the text term.
	FilterCompose FilterMode = "compose"
)

// TextMatch selects the free-text matching strategy.
type TextMatch string

const (
	TextSubstring TextMatch = "substring"
	TextFuzzy     TextMatch = "fuzzy"
)

// Column defines one field of a page: how it is labelled, sorted, validated and exported.
type Column struct {
	Field    string            `json:"field" yaml:"field" toml:"field"`
	Label    string            `json:"label,omitempty" yaml:"label,omitempty" toml:"label"`
	Labels   map[string]string `json:"labels,omitempty" yaml:"labels,omitempty" toml:"labels"`
	Type     string            `json:"type,omitempty" yaml:"type,omitempty" toml:"type"` // text, number, boolean
	Sortable bool              `json:"sortable" yaml:"sortable" toml:"sortable"`
	Visible  bool              `json:"visible" yaml:"visible" toml:"visible"`
	Required bool              `json:"required,omitempty" yaml:"required,omitempty" toml:"required"`
	Validate string            `json:"validate,omitempty" yaml:"validate,omitempty" toml:"validate"` // validator tags, e.g. "gte=0,lte=100"
	Format   string            `json:"format,omitempty" yaml:"format,omitempty" toml:"format"`       // "yesno" or a printf verb
	Options  []Option          `json:"options,omitempty" yaml:"options,omitempty" toml:"options"`
}

// Option is one entry of a column's list of values.
type Option struct {
	Value  interface{}       `json:"value" yaml:"value" toml:"value"`
	Label  string            `json:"label,omitempty" yaml:"label,omitempty" toml:"label"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty" toml:"labels"`
}

// Defaults are applied when a grid is initialised from the definition.
type Defaults struct {
	PageSize      int    `json:"page_size,omitempty" yaml:"page_size,omitempty" toml:"page_size"`
	SortColumn    string `json:"sort_column,omitempty" yaml:"sort_column,omitempty" toml:"sort_column"`
	SortDirection string `json:"sort_direction,omitempty" yaml:"sort_direction,omitempty" toml:"sort_direction"`
}

// Source names the table a seed is loaded from when a database is configured.
type Source struct {
	Table string `json:"table" yaml:"table" toml:"table"`
}

// Definition is the per-page configuration of a Grid.
type Definition struct {
	Name         string            `json:"name" yaml:"name" toml:"name"`
	Title        string            `json:"title,omitempty" yaml:"title,omitempty" toml:"title"`
	Labels       map[string]string `json:"labels,omitempty" yaml:"labels,omitempty" toml:"labels"`
	Columns      []Column          `json:"columns,omitempty" yaml:"columns,omitempty" toml:"columns"`
	Searchable   []string          `json:"searchable_columns,omitempty" yaml:"searchable_columns,omitempty" toml:"searchable_columns"`
	FilterMode   FilterMode        `json:"filter_mode,omitempty" yaml:"filter_mode,omitempty" toml:"filter_mode"`
	TextMatch    TextMatch         `json:"text_match,omitempty" yaml:"text_match,omitempty" toml:"text_match"`
	ReadOnly     bool              `json:"read_only,omitempty" yaml:"read_only,omitempty" toml:"read_only"`
	Defaults     Defaults          `json:"defaults,omitempty" yaml:"defaults,omitempty" toml:"defaults"`
	Summary      []Aggregate       `json:"summary,omitempty" yaml:"summary,omitempty" toml:"summary"`
	QuickFilters []QuickFilter     `json:"quick_filters,omitempty" yaml:"quick_filters,omitempty" toml:"quick_filters"`
	Source       *Source           `json:"source,omitempty" yaml:"source,omitempty" toml:"source"`
	Seed         []Record          `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed"`
}

// DisplayLabel resolves the column label for lang, falling back to English,
// then to the plain label, then to the field name.
func (c Column) DisplayLabel(lang string) string {
	if l, ok := c.Labels[lang]; ok {
		return l
	}
	if l, ok := c.Labels["en"]; ok {
		return l
	}
	if c.Label != "" {
		return c.Label
	}
	return c.Field
}

// DisplayLabel resolves an option label the same way columns do.
func (o Option) DisplayLabel(lang string) string {
	if l, ok := o.Labels[lang]; ok {
		return l
	}
	if l, ok := o.Labels["en"]; ok {
		return l
	}
	if o.Label != "" {
		return o.Label
	}
	return formatValue(o.Value)
}

// Column returns the column declared for field.
func (d *Definition) Column(field string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return Column{}, false
}

// SearchFields returns the fields the free-text filter looks at. Without an explicit
// list every text column is searched, and with no columns every field of the record.
func (d *Definition) SearchFields() []string {
	if len(d.Searchable) > 0 {
		return d.Searchable
	}
	fields := []string{}
	for _, c := range d.Columns {
		if c.Type == "" || c.Type == "text" || c.Type == "string" {
			fields = append(fields, c.Field)
		}
	}
	return fields
}

func (d *Definition) sortable(column string) bool {
	if len(d.Columns) == 0 || column == IDField {
		return true
	}
	c, ok := d.Column(column)
	return ok && c.Sortable
}

func (d *Definition) filterMode() FilterMode {
	if d.FilterMode == "" {
		return FilterReplace
	}
	return d.FilterMode
}

// Validate checks the definition for internal consistency.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("definition name is required")
	}
	seen := make(map[string]bool)
	for _, c := range d.Columns {
		if c.Field == "" {
			return fmt.Errorf("definition %s: column without field", d.Name)
		}
		if seen[c.Field] {
			return fmt.Errorf("definition %s: duplicate column %s", d.Name, c.Field)
		}
		seen[c.Field] = true
	}
	if len(d.Columns) > 0 {
		for _, f := range d.Searchable {
			if !seen[f] {
				return fmt.Errorf("definition %s: searchable column %s is not declared", d.Name, f)
			}
		}
	}
	switch d.FilterMode {
	case "", FilterReplace, FilterCompose:
	default:
		return fmt.Errorf("definition %s: unknown filter mode %q", d.Name, d.FilterMode)
	}
	switch d.TextMatch {
	case "", TextSubstring, TextFuzzy:
	default:
		return fmt.Errorf("definition %s: unknown text match %q", d.Name, d.TextMatch)
	}
	if d.Defaults.PageSize < 0 {
		return fmt.Errorf("definition %s: negative page size", d.Name)
	}
	for _, a := range d.Summary {
		if err := a.validate(); err != nil {
			return fmt.Errorf("definition %s: %w", d.Name, err)
		}
	}
	for _, q := range d.QuickFilters {
		if q.Name == "" {
			return fmt.Errorf("definition %s: quick filter without name", d.Name)
		}
		if err := (FilterCriteria{Predicates: q.Predicates}).Validate(); err != nil {
			return fmt.Errorf("definition %s: quick filter %s: %w", d.Name, q.Name, err)
		}
	}
	return nil
}

// LoadDefinition reads a page definition from a .json, .yaml/.yml or .toml file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDefinition(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// ParseDefinition decodes a definition in the given format, validates it against
// the embedded schema and then checks it for consistency.
func ParseDefinition(data []byte, format string) (*Definition, error) {
	var doc interface{}
	var def Definition

	switch format {
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
	case "toml":
		m := map[string]interface{}{}
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
		doc = m
		if err := toml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse definition: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported definition format %q", format)
	}

	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ValidateDocument checks a decoded definition document against the schema.
func ValidateDocument(doc interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(definitionSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("definition does not match schema: %s", strings.Join(msgs, "; "))
}

// DefinitionBuilder assembles a Definition in code.
type DefinitionBuilder struct {
	def Definition
}

// NewDefinition starts a builder for the named page.
func NewDefinition(name string) *DefinitionBuilder {
	return &DefinitionBuilder{def: Definition{Name: name}}
}

func (b *DefinitionBuilder) Title(title string) *DefinitionBuilder {
	b.def.Title = title
	return b
}

func (b *DefinitionBuilder) Column(c Column) *DefinitionBuilder {
	b.def.Columns = append(b.def.Columns, c)
	return b
}

// Text, Number and Bool add sortable, visible columns of the matching type.
func (b *DefinitionBuilder) Text(field, label string) *DefinitionBuilder {
	return b.Column(Column{Field: field, Label: label, Type: "text", Sortable: true, Visible: true})
}

func (b *DefinitionBuilder) Number(field, label string) *DefinitionBuilder {
	return b.Column(Column{Field: field, Label: label, Type: "number", Sortable: true, Visible: true})
}

func (b *DefinitionBuilder) Bool(field, label string) *DefinitionBuilder {
	return b.Column(Column{Field: field, Label: label, Type: "boolean", Sortable: true, Visible: true, Format: "yesno"})
}

func (b *DefinitionBuilder) Searchable(fields ...string) *DefinitionBuilder {
	b.def.Searchable = append(b.def.Searchable, fields...)
	return b
}

func (b *DefinitionBuilder) FilterMode(m FilterMode) *DefinitionBuilder {
	b.def.FilterMode = m
	return b
}

func (b *DefinitionBuilder) TextMatch(m TextMatch) *DefinitionBuilder {
	b.def.TextMatch = m
	return b
}

func (b *DefinitionBuilder) PageSize(n int) *DefinitionBuilder {
	b.def.Defaults.PageSize = n
	return b
}

func (b *DefinitionBuilder) DefaultSort(column string, dir Direction) *DefinitionBuilder {
	b.def.Defaults.SortColumn = column
	b.def.Defaults.SortDirection = string(dir)
	return b
}

func (b *DefinitionBuilder) Aggregate(a Aggregate) *DefinitionBuilder {
	b.def.Summary = append(b.def.Summary, a)
	return b
}

func (b *DefinitionBuilder) QuickFilter(q QuickFilter) *DefinitionBuilder {
	b.def.QuickFilters = append(b.def.QuickFilters, q)
	return b
}

func (b *DefinitionBuilder) ReadOnly() *DefinitionBuilder {
	b.def.ReadOnly = true
	return b
}

func (b *DefinitionBuilder) Seed(records ...Record) *DefinitionBuilder {
	b.def.Seed = append(b.def.Seed, records...)
	return b
}

// Build validates and returns the definition.
func (b *DefinitionBuilder) Build() (*Definition, error) {
	def := b.def
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
