package catalog

import (
	"context"
	"log/slog"

	"github.com/zhangyunhao116/skipmap"

	"rewriteplan/pkg/table"
)

// Memory keeps tables in an ordered concurrent map. It is safe for concurrent
// use.
type Memory struct {
	tables *skipmap.FuncMap[string, *table.Metadata]
}

func NewMemory() *Memory {
	return &Memory{
		tables: skipmap.NewFunc[string, *table.Metadata](func(a, b string) bool {
			return a < b
		}),
	}
}

// LoadYAML builds a Memory catalog from a YAML catalog file.
func LoadYAML(path string) (*Memory, error) {
	tables, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := NewMemory()
	for _, md := range tables {
		if err := m.Register(md); err != nil {
			return nil, err
		}
	}
	slog.Info("catalog loaded", "path", path, "tables", m.tables.Len())
	return m, nil
}

// Register adds or replaces a table.
func (m *Memory) Register(md *table.Metadata) error {
	if err := md.Validate(); err != nil {
		return err
	}
	m.tables.Store(md.TableName, md)
	return nil
}

func (m *Memory) LoadTable(_ context.Context, name string) (table.Table, error) {
	md, ok := m.tables.Load(name)
	if !ok {
		return nil, notFound(name)
	}
	return md, nil
}

// ListTables returns table names in ascending order.
func (m *Memory) ListTables(context.Context) ([]string, error) {
	names := make([]string, 0, m.tables.Len())
	m.tables.Range(func(name string, _ *table.Metadata) bool {
		names = append(names, name)
		return true
	})
	return names, nil
}
