package table

import (
	"fmt"
	"maps"
	"strconv"
)

const (
	PropertyTargetFileSize       = "write.target-file-size-bytes"
	DefaultTargetFileSize  int64 = 512 * 1024 * 1024
)

// Table exposes the parts of a table that rewrite planning depends on.
type Table interface {
	Name() string
	Schema() *Schema
	SortOrder() SortOrder
	Properties() map[string]string
}

// Metadata is a plain Table, used by catalogs and tests.
type Metadata struct {
	TableName   string            `yaml:"name" json:"name"`
	TableSchema *Schema           `yaml:"schema" json:"schema"`
	Order       SortOrder         `yaml:"sort-order" json:"sort-order"`
	Props       map[string]string `yaml:"properties" json:"properties,omitempty"`
}

func (m *Metadata) Name() string         { return m.TableName }
func (m *Metadata) Schema() *Schema      { return m.TableSchema }
func (m *Metadata) SortOrder() SortOrder { return m.Order }

// Properties returns a copy of the table properties.
func (m *Metadata) Properties() map[string]string {
	return maps.Clone(m.Props)
}

// Validate checks the metadata is usable for planning. The sort order may be
// unsorted; strategies that need one reject it themselves.
func (m *Metadata) Validate() error {
	if m.TableName == "" {
		return fmt.Errorf("table name is empty")
	}
	if err := m.TableSchema.Validate(); err != nil {
		return fmt.Errorf("table %s: %w", m.TableName, err)
	}
	if err := CheckCompatibility(m.Order, m.TableSchema); err != nil {
		return fmt.Errorf("table %s: %w", m.TableName, err)
	}
	return nil
}

// TargetFileSize reads the table's target file size property.
func TargetFileSize(t Table) (int64, error) {
	raw, ok := t.Properties()[PropertyTargetFileSize]
	if !ok {
		return DefaultTargetFileSize, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("table property %s: %w", PropertyTargetFileSize, err)
	}
	return v, nil
}
