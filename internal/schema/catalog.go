// Package schema describes the CRM tables and views for model prompts.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var defaultCatalogYAML []byte

const (
	KindTable = "table"
	KindView  = "view"
)

type Column struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

type Table struct {
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"`
	Description string   `yaml:"description"`
	Columns     []Column `yaml:"columns"`
}

type Catalog struct {
	Tables          []Table `yaml:"tables"`
	BusinessContext string  `yaml:"business_context"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() Catalog {
	catalog, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded schema catalog is invalid: %v", err))
	}
	return catalog
}

// LoadCatalog reads a catalog file, or the embedded one when path is empty.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read schema catalog %q: %w", path, err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("decode schema catalog: %w", err)
	}
	if len(catalog.Tables) == 0 {
		return Catalog{}, fmt.Errorf("schema catalog has no tables")
	}
	seen := make(map[string]struct{}, len(catalog.Tables))
	for i := range catalog.Tables {
		table := &catalog.Tables[i]
		table.Name = strings.TrimSpace(table.Name)
		if table.Name == "" {
			return Catalog{}, fmt.Errorf("schema catalog table %d has no name", i+1)
		}
		key := strings.ToLower(table.Name)
		if _, dup := seen[key]; dup {
			return Catalog{}, fmt.Errorf("schema catalog lists %q twice", table.Name)
		}
		seen[key] = struct{}{}
		switch strings.ToLower(strings.TrimSpace(table.Kind)) {
		case "", KindTable:
			table.Kind = KindTable
		case KindView:
			table.Kind = KindView
		default:
			return Catalog{}, fmt.Errorf("schema catalog table %q has invalid kind %q", table.Name, table.Kind)
		}
	}
	catalog.BusinessContext = strings.TrimSpace(catalog.BusinessContext)
	return catalog, nil
}

// TableNames returns the names of entries of the given kind in catalog order.
func (c Catalog) TableNames(kind string) []string {
	names := make([]string, 0, len(c.Tables))
	for _, table := range c.Tables {
		if table.Kind == kind {
			names = append(names, table.Name)
		}
	}
	return names
}

// Text renders the catalog as the schema block inserted into prompts.
func (c Catalog) Text() string {
	var b strings.Builder
	writeSection := func(title, kind string) {
		first := true
		for _, table := range c.Tables {
			if table.Kind != kind {
				continue
			}
			if first {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(title)
				b.WriteString(":\n")
				first = false
			}
			b.WriteString(tableToText(table))
		}
	}
	writeSection("Tables", KindTable)
	writeSection("Views", KindView)
	return strings.TrimRight(b.String(), "\n")
}

func tableToText(table Table) string {
	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(table.Name)
	if table.Description != "" {
		b.WriteString(": ")
		b.WriteString(table.Description)
	}
	b.WriteString("\n")
	if len(table.Columns) == 0 {
		b.WriteString("    (columns unknown)\n")
		return b.String()
	}
	for _, column := range table.Columns {
		b.WriteString("    ")
		b.WriteString(column.Name)
		if column.Type != "" {
			b.WriteString(" ")
			b.WriteString(column.Type)
		}
		if column.Description != "" {
			b.WriteString(" -- ")
			b.WriteString(column.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
