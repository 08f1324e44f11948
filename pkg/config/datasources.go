package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DataSources is the catalog of named data sources a report can query.
type DataSources struct {
	// BaseDir is the directory relative resource paths are resolved against.
	// It defaults to the directory holding the catalog file.
	BaseDir      string             `yaml:"base_dir,omitempty"`
	Connections  []ConnectionSource `yaml:"connections,omitempty"`
	Spreadsheets []SheetSource      `yaml:"spreadsheets,omitempty"`
	Tables       []TableSource      `yaml:"tables,omitempty"`
	Cache        CacheOptions       `yaml:"cache,omitempty"`
}

// ConnectionSource describes a database/sql connection.
type ConnectionSource struct {
	Name    string            `yaml:"name"`
	Driver  string            `yaml:"driver"` // mysql or postgres
	DSN     string            `yaml:"dsn"`
	Queries map[string]string `yaml:"queries,omitempty"`
	// FreeForm allows queries that are plain SQL instead of a query name.
	FreeForm bool `yaml:"free_form,omitempty"`
}

// SheetSource describes a spreadsheet workbook. Every sheet is a query.
type SheetSource struct {
	Name     string `yaml:"name"`
	Resource string `yaml:"resource"`
}

// TableSource describes an inline table.
type TableSource struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Rows    [][]any  `yaml:"rows,omitempty"`
}

// CacheOptions configures the query result cache. Size 0 disables caching.
type CacheOptions struct {
	Size int `yaml:"size,omitempty"`
}

// LoadDataSources reads a data source catalog from a YAML file.
func LoadDataSources(path string) (*DataSources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data sources file %s: %w", path, err)
	}
	ds, err := ParseDataSources(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse data sources file %s: %w", path, err)
	}
	if ds.BaseDir == "" {
		ds.BaseDir = filepath.Dir(path)
	} else if !filepath.IsAbs(ds.BaseDir) {
		ds.BaseDir = filepath.Join(filepath.Dir(path), ds.BaseDir)
	}
	return ds, nil
}

// ParseDataSources parses YAML content and validates it.
func ParseDataSources(data []byte) (*DataSources, error) {
	var ds DataSources
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks that names are set and unique.
func (ds *DataSources) Validate() error {
	seen := make(map[string]bool)
	check := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("%s without name", kind)
		}
		if seen[name] {
			return fmt.Errorf("duplicate data source name %q", name)
		}
		seen[name] = true
		return nil
	}
	for _, c := range ds.Connections {
		if err := check("connection", c.Name); err != nil {
			return err
		}
		if c.Driver == "" || c.DSN == "" {
			return fmt.Errorf("connection %q needs driver and dsn", c.Name)
		}
	}
	for _, s := range ds.Spreadsheets {
		if err := check("spreadsheet", s.Name); err != nil {
			return err
		}
		if s.Resource == "" {
			return fmt.Errorf("spreadsheet %q needs a resource", s.Name)
		}
	}
	for _, t := range ds.Tables {
		if err := check("table", t.Name); err != nil {
			return err
		}
		for i, row := range t.Rows {
			if len(row) != len(t.Columns) {
				return fmt.Errorf("table %q row %d has %d values, want %d", t.Name, i, len(row), len(t.Columns))
			}
		}
	}
	if ds.Cache.Size < 0 {
		return fmt.Errorf("cache size must not be negative")
	}
	return nil
}

// Names returns every data source name in declaration order.
func (ds *DataSources) Names() []string {
	var names []string
	for _, c := range ds.Connections {
		names = append(names, c.Name)
	}
	for _, s := range ds.Spreadsheets {
		names = append(names, s.Name)
	}
	for _, t := range ds.Tables {
		names = append(names, t.Name)
	}
	return names
}
