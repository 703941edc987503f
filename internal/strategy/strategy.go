// Package strategy decides which data files of a table to rewrite and how to
// group them into independent rewrite units.
//
// Strategies are built once from a string option map and are immutable
// afterwards. Building validates everything; SelectFilesToRewrite and
// PlanFileGroups never fail.
package strategy

import (
	"iter"
	"slices"
	"strings"

	"rewriteplan/pkg/planerr"
	"rewriteplan/pkg/scan"
	"rewriteplan/pkg/table"
)

// Strategy is a configured rewrite policy.
type Strategy interface {
	Name() string
	ValidOptions() []string
	SelectFilesToRewrite(tasks iter.Seq[*scan.FileScanTask]) iter.Seq[*scan.FileScanTask]
	PlanFileGroups(tasks iter.Seq[*scan.FileScanTask]) iter.Seq[[]*scan.FileScanTask]
}

// Request carries everything needed to build a strategy by name. SortOrder
// is only read by strategies that sort.
type Request struct {
	Options   map[string]string
	SortOrder *table.SortOrder
}

type entry struct {
	validOptions func() []string
	build        func(tbl table.Table, req Request) (Strategy, error)
}

var registry = map[string]entry{
	BinPackName: {
		validOptions: BinPackValidOptions,
		build: func(tbl table.Table, req Request) (Strategy, error) {
			return NewBinPackStrategy(tbl, req.Options)
		},
	},
	SortName: {
		validOptions: SortValidOptions,
		build: func(tbl table.Table, req Request) (Strategy, error) {
			b := NewSortStrategyBuilder(tbl)
			if req.SortOrder != nil {
				b.SortOrder(*req.SortOrder)
			}
			return b.Build(req.Options)
		},
	},
}

// Names lists the registered strategies.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ValidOptionsFor returns the option names a strategy accepts.
func ValidOptionsFor(name string) ([]string, error) {
	e, ok := registry[strings.ToUpper(name)]
	if !ok {
		return nil, planerr.ErrUnknownStrategy
	}
	return e.validOptions(), nil
}

// Build configures the strategy called name for tbl.
func Build(name string, tbl table.Table, req Request) (Strategy, error) {
	e, ok := registry[strings.ToUpper(name)]
	if !ok {
		return nil, planerr.ErrUnknownStrategy
	}
	return e.build(tbl, req)
}

func tableName(tbl table.Table) string {
	if tbl == nil {
		return "<nil>"
	}
	return tbl.Name()
}
