package strategy

import (
	"iter"
	"log/slog"

	"rewriteplan/pkg/binpack"
	"rewriteplan/pkg/planerr"
	"rewriteplan/pkg/scan"
	"rewriteplan/pkg/table"
)

const SortName = "SORT"

const (
	// RewriteAll rewrites every file regardless of its size.
	RewriteAll        = "rewrite-all"
	rewriteAllDefault = false
)

var sortOptions = optionSet{RewriteAll}

// SortValidOptions lists the sort options plus every size option.
func SortValidOptions() []string {
	return union(binPackOptions, sortOptions)
}

// Mode is how a SortStrategy picks and groups files.
type Mode int

const (
	// ModeDelegate defers selection and grouping to the size-based strategy.
	ModeDelegate Mode = iota
	// ModeRewriteAll selects every file and packs them sequentially.
	ModeRewriteAll
)

func (m Mode) String() string {
	switch m {
	case ModeDelegate:
		return "delegate"
	case ModeRewriteAll:
		return "rewrite-all"
	default:
		return "unknown"
	}
}

// SortStrategyBuilder collects the inputs of a SortStrategy before options
// are validated.
type SortStrategyBuilder struct {
	table     table.Table
	sortOrder *table.SortOrder
}

func NewSortStrategyBuilder(tbl table.Table) *SortStrategyBuilder {
	return &SortStrategyBuilder{table: tbl}
}

// SortOrder overrides the table's own sort order.
func (b *SortStrategyBuilder) SortOrder(order table.SortOrder) *SortStrategyBuilder {
	b.sortOrder = &order
	return b
}

// Build validates options and returns an immutable strategy. Size options
// are checked first, then the sort order against the current schema.
func (b *SortStrategyBuilder) Build(options map[string]string) (*SortStrategy, error) {
	name := tableName(b.table)
	if err := checkKeys(SortName, name, options, SortValidOptions()); err != nil {
		return nil, err
	}

	delegate, err := newBinPack(SortName, b.table, options)
	if err != nil {
		return nil, err
	}

	p := optionParser{strategy: SortName, table: name, options: options}
	rewriteAll := p.asBool(RewriteAll, rewriteAllDefault)
	if p.err != nil {
		return nil, p.err
	}

	order := b.table.SortOrder()
	if b.sortOrder != nil {
		order = *b.sortOrder
	}

	if order.IsUnsorted() {
		return nil, planerr.Configf(SortName, name,
			"cannot use %s when there is no sort order, either define table %s's sort order or set the sort order on the strategy",
			SortName, name)
	}
	if err := table.CheckCompatibility(order, b.table.Schema()); err != nil {
		return nil, planerr.ConfigWrap(SortName, name, err, "sort order %s does not match the table schema", order)
	}

	mode := ModeDelegate
	if rewriteAll {
		mode = ModeRewriteAll
	}

	return &SortStrategy{
		table:     b.table,
		delegate:  delegate,
		sortOrder: order,
		mode:      mode,
	}, nil
}

// SortStrategy rewrites files so their rows follow a sort order. Depending
// on Mode it takes every file or the files the size-based strategy picks.
type SortStrategy struct {
	table     table.Table
	delegate  *BinPackStrategy
	sortOrder table.SortOrder
	mode      Mode
}

func (s *SortStrategy) Name() string { return SortName }

func (s *SortStrategy) ValidOptions() []string { return SortValidOptions() }

func (s *SortStrategy) SortOrder() table.SortOrder { return s.sortOrder }

func (s *SortStrategy) Mode() Mode { return s.mode }

// SizePolicy is the size-based strategy used in delegate mode. Its size
// settings also bound groups in rewrite-all mode.
func (s *SortStrategy) SizePolicy() *BinPackStrategy { return s.delegate }

// SelectFilesToRewrite returns tasks unchanged in rewrite-all mode.
func (s *SortStrategy) SelectFilesToRewrite(tasks iter.Seq[*scan.FileScanTask]) iter.Seq[*scan.FileScanTask] {
	if s.mode == ModeRewriteAll {
		slog.Info("sort strategy set to rewrite all data files", "table", s.table.Name())
		return tasks
	}
	return s.delegate.SelectFilesToRewrite(tasks)
}

// PlanFileGroups packs every task in one sequential pass in rewrite-all
// mode, with no size filtering.
func (s *SortStrategy) PlanFileGroups(tasks iter.Seq[*scan.FileScanTask]) iter.Seq[[]*scan.FileScanTask] {
	if s.mode == ModeRewriteAll {
		return binpack.Pack(tasks, (*scan.FileScanTask).Length, binpack.Options{
			TargetWeight:    s.delegate.MaxGroupSize(),
			Lookback:        1,
			LargestBinFirst: false,
		})
	}
	return s.delegate.PlanFileGroups(tasks)
}
