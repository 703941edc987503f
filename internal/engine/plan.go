package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"rewriteplan/internal/strategy"
	"rewriteplan/pkg/metrics"
	"rewriteplan/pkg/scan"
	"rewriteplan/pkg/table"
)

// FileGroup is one unit of rewrite work: files of a single partition that
// are rewritten together.
type FileGroup struct {
	ID             uuid.UUID            `json:"id"`
	GlobalIndex    int                  `json:"global_index"`
	PartitionIndex int                  `json:"partition_index"`
	Partition      string               `json:"partition"`
	Files          []*scan.FileScanTask `json:"files"`
	SizeBytes      int64                `json:"size_bytes"`
}

// Plan is the ordered list of groups produced for one table by one strategy.
type Plan struct {
	ID       uuid.UUID    `json:"id"`
	Table    string       `json:"table"`
	Strategy string       `json:"strategy"`
	Groups   []*FileGroup `json:"groups"`
}

func (p *Plan) TotalBytes() int64 {
	var n int64
	for _, g := range p.Groups {
		n += g.SizeBytes
	}
	return n
}

func (p *Plan) TotalFiles() int {
	var n int
	for _, g := range p.Groups {
		n += len(g.Files)
	}
	return n
}

// Planner runs a configured strategy over a table's candidate files one
// partition at a time.
type Planner struct {
	Strategy strategy.Strategy
	Metrics  metrics.Collector
}

func NewPlanner(s strategy.Strategy, m metrics.Collector) *Planner {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Planner{Strategy: s, Metrics: m}
}

// Plan buckets candidates by partition, in the order partitions are first
// seen, and asks the strategy to select and group each bucket. Files of
// different partitions never share a group.
func (p *Planner) Plan(ctx context.Context, tbl table.Table, candidates iter.Seq[*scan.FileScanTask]) (*Plan, error) {
	if p.Strategy == nil {
		return nil, fmt.Errorf("engine: planner has no strategy")
	}
	collector := p.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	start := time.Now()

	var order []string
	buckets := make(map[string][]*scan.FileScanTask)
	total := 0
	for t := range candidates {
		part := t.File.Partition
		if _, ok := buckets[part]; !ok {
			order = append(order, part)
		}
		buckets[part] = append(buckets[part], t)
		total++
	}

	plan := &Plan{
		ID:       uuid.New(),
		Table:    tbl.Name(),
		Strategy: p.Strategy.Name(),
	}

	selected := 0
	for _, part := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chosen := counted(p.Strategy.SelectFilesToRewrite(slices.Values(buckets[part])), &selected)
		idx := 0
		for files := range p.Strategy.PlanFileGroups(chosen) {
			g := &FileGroup{
				ID:             uuid.New(),
				GlobalIndex:    len(plan.Groups),
				PartitionIndex: idx,
				Partition:      part,
				Files:          files,
			}
			for _, f := range files {
				g.SizeBytes += f.Length()
			}
			plan.Groups = append(plan.Groups, g)
			idx++
		}
	}

	labels := map[string]string{"table": plan.Table, "strategy": plan.Strategy}
	collector.IncCounter("rewriteplan_plans_total", labels, 1)
	collector.IncCounter("rewriteplan_candidate_files_total", labels, float64(total))
	collector.IncCounter("rewriteplan_selected_files_total", labels, float64(selected))
	collector.IncCounter("rewriteplan_groups_total", labels, float64(len(plan.Groups)))
	collector.IncCounter("rewriteplan_planned_bytes_total", labels, float64(plan.TotalBytes()))
	collector.ObserveHistogram("rewriteplan_plan_duration_seconds", labels, time.Since(start).Seconds())

	slog.Info("rewrite plan ready",
		"table", plan.Table,
		"strategy", plan.Strategy,
		"plan_id", plan.ID,
		"partitions", len(order),
		"candidates", total,
		"selected", selected,
		"groups", len(plan.Groups),
		"files", plan.TotalFiles(),
		"bytes", plan.TotalBytes(),
	)
	return plan, nil
}

// counted passes tasks through and counts how many the consumer pulled.
func counted(tasks iter.Seq[*scan.FileScanTask], n *int) iter.Seq[*scan.FileScanTask] {
	return func(yield func(*scan.FileScanTask) bool) {
		for t := range tasks {
			*n++
			if !yield(t) {
				return
			}
		}
	}
}
