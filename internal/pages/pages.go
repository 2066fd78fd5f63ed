// Package pages holds the grid definitions served by the demo server.
package pages

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gnemet/tablegrid"
)

//go:embed definitions/*.yaml
var files embed.FS

// Catalog maps page names to definitions.
type Catalog struct {
	defs map[string]*tablegrid.Definition
}

// Page is the listing entry for one definition.
type Page struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	ReadOnly bool   `json:"read_only,omitempty"`
	Records  int    `json:"records"`
}

// Embedded returns a catalog of the built-in pages.
func Embedded() (*Catalog, error) {
	c := &Catalog{defs: make(map[string]*tablegrid.Definition)}
	entries, err := fs.ReadDir(files, "definitions")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := files.ReadFile(path.Join("definitions", e.Name()))
		if err != nil {
			return nil, err
		}
		def, err := tablegrid.ParseDefinition(data, strings.TrimPrefix(path.Ext(e.Name()), "."))
		if err != nil {
			return nil, fmt.Errorf("page %s: %w", e.Name(), err)
		}
		c.Add(def)
	}
	return c, nil
}

// LoadDir adds every .json, .yaml, .yml and .toml definition found in dir.
// A definition with the name of an existing page replaces it.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml", ".toml":
		default:
			continue
		}
		def, err := tablegrid.LoadDefinition(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("page %s: %w", e.Name(), err)
		}
		if _, ok := c.defs[def.Name]; ok {
			slog.Warn("Definition replaces built-in page", "page", def.Name, "file", e.Name())
		}
		c.Add(def)
	}
	return nil
}

// Add registers def under its name.
func (c *Catalog) Add(def *tablegrid.Definition) {
	c.defs[def.Name] = def
}

// Get returns the definition for page.
func (c *Catalog) Get(page string) (*tablegrid.Definition, bool) {
	def, ok := c.defs[page]
	return def, ok
}

// Names returns the page names in order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.defs))
	for n := range c.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Pages lists the catalog for the index endpoint.
func (c *Catalog) Pages() []Page {
	out := make([]Page, 0, len(c.defs))
	for _, n := range c.Names() {
		def := c.defs[n]
		title := def.Title
		if title == "" {
			title = def.Name
		}
		out = append(out, Page{Name: def.Name, Title: title, ReadOnly: def.ReadOnly, Records: len(def.Seed)})
	}
	return out
}
