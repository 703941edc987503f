// Package catalog looks up table metadata for planning.
package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"rewriteplan/pkg/planerr"
	"rewriteplan/pkg/table"
)

// Catalog resolves table names to table metadata.
type Catalog interface {
	LoadTable(ctx context.Context, name string) (table.Table, error)
	ListTables(ctx context.Context) ([]string, error)
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", planerr.ErrTableNotFound, name)
}

// File is the on-disk layout of a YAML catalog.
type File struct {
	Tables []*table.Metadata `yaml:"tables"`
}

// ReadFile parses a YAML catalog file. Every table is validated.
func ReadFile(path string) ([]*table.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for i, md := range f.Tables {
		if md == nil {
			return nil, fmt.Errorf("catalog %s: table #%d is empty", path, i)
		}
		if err := md.Validate(); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
	}
	return f.Tables, nil
}
