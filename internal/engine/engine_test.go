package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"rewriteplan/internal/strategy"
	"rewriteplan/pkg/metrics"
	"rewriteplan/pkg/scan"
	"rewriteplan/pkg/table"
)

func eventsTable() *table.Metadata {
	return &table.Metadata{
		TableName: "db.events",
		TableSchema: table.NewSchema(0,
			table.Field{ID: 1, Name: "id", Type: table.LongType, Required: true},
		),
		Order: table.SortOrder{OrderID: 1, Fields: []table.SortField{
			{SourceID: 1, Transform: table.IdentityTransform, Direction: table.Asc, NullOrder: table.NullsFirst},
		}},
	}
}

type file struct {
	partition string
	size      int64
}

func partitioned(files ...file) []*scan.FileScanTask {
	out := make([]*scan.FileScanTask, len(files))
	for i, f := range files {
		out[i] = scan.NewFileScanTask(scan.DataFile{
			Path:      fmt.Sprintf("data/%s/%05d.parquet", f.partition, i),
			Format:    scan.FormatParquet,
			Partition: f.partition,
			SizeBytes: f.size,
		}, 0)
	}
	return out
}

func rewriteAllPlanner(t *testing.T, tbl table.Table, m metrics.Collector) *Planner {
	t.Helper()
	s, err := strategy.Build("sort", tbl, strategy.Request{Options: map[string]string{
		strategy.RewriteAll:            "true",
		strategy.TargetFileSizeBytes:   "100",
		strategy.MaxFileGroupSizeBytes: "25",
	}})
	if err != nil {
		t.Fatalf("build strategy: %v", err)
	}
	return NewPlanner(s, m)
}

func TestPlanner_GroupsPerPartition(t *testing.T) {
	tbl := eventsTable()
	reg := metrics.NewRegistry()
	p := rewriteAllPlanner(t, tbl, reg)

	candidates := partitioned(
		file{"day=1", 10},
		file{"day=2", 20},
		file{"day=1", 15},
		file{"day=2", 30},
	)
	plan, err := p.Plan(context.Background(), tbl, slices.Values(candidates))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	type shape struct {
		global, local int
		partition     string
		sizes         []int64
		bytes         int64
	}
	var got []shape
	for _, g := range plan.Groups {
		s := shape{global: g.GlobalIndex, local: g.PartitionIndex, partition: g.Partition, bytes: g.SizeBytes}
		for _, f := range g.Files {
			s.sizes = append(s.sizes, f.Length())
		}
		got = append(got, s)
	}
	want := []shape{
		{0, 0, "day=1", []int64{10, 15}, 25},
		{1, 0, "day=2", []int64{20}, 20},
		{2, 1, "day=2", []int64{30}, 30},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("groups mismatch:\n got %+v\nwant %+v", got, want)
	}

	if plan.Table != "db.events" || plan.Strategy != strategy.SortName {
		t.Fatalf("unexpected plan header: %s %s", plan.Table, plan.Strategy)
	}
	if plan.TotalFiles() != 4 || plan.TotalBytes() != 75 {
		t.Fatalf("totals: files=%d bytes=%d", plan.TotalFiles(), plan.TotalBytes())
	}

	seen := map[uuid.UUID]bool{plan.ID: true}
	for _, g := range plan.Groups {
		if seen[g.ID] {
			t.Fatalf("duplicate id %s", g.ID)
		}
		seen[g.ID] = true
	}

	labels := map[string]string{"table": "db.events", "strategy": strategy.SortName}
	if v, _ := reg.Value("rewriteplan_groups_total", labels); v != 3 {
		t.Fatalf("groups metric = %v, want 3", v)
	}
	if v, _ := reg.Value("rewriteplan_candidate_files_total", labels); v != 4 {
		t.Fatalf("candidates metric = %v, want 4", v)
	}
	if v, _ := reg.Value("rewriteplan_selected_files_total", labels); v != 4 {
		t.Fatalf("selected metric = %v, want 4", v)
	}
}

func TestPlanner_BinPackSkipsWellSizedFiles(t *testing.T) {
	tbl := eventsTable()
	s, err := strategy.NewBinPackStrategy(tbl, map[string]string{
		strategy.TargetFileSizeBytes: "100",
		strategy.MinInputFiles:       "2",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	candidates := partitioned(
		file{"", 10},
		file{"", 100},
		file{"", 20},
		file{"", 90},
	)
	plan, err := NewPlanner(s, nil).Plan(context.Background(), tbl, slices.Values(candidates))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Groups) != 1 {
		t.Fatalf("expected one group, got %d", len(plan.Groups))
	}
	got := plan.Groups[0].Files
	if len(got) != 2 || got[0] != candidates[0] || got[1] != candidates[2] {
		t.Fatalf("unexpected group files: %v", got)
	}
}

func TestPlanner_Cancelled(t *testing.T) {
	tbl := eventsTable()
	p := rewriteAllPlanner(t, tbl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Plan(ctx, tbl, slices.Values(partitioned(file{"a", 1})))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPlanner_Empty(t *testing.T) {
	tbl := eventsTable()
	plan, err := rewriteAllPlanner(t, tbl, nil).Plan(context.Background(), tbl, slices.Values[[]*scan.FileScanTask](nil))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Groups) != 0 || plan.TotalBytes() != 0 {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
}

func planOf(n int) *Plan {
	p := &Plan{ID: uuid.New(), Table: "db.events"}
	for i := 0; i < n; i++ {
		p.Groups = append(p.Groups, &FileGroup{ID: uuid.New(), GlobalIndex: i})
	}
	return p
}

func TestRun_CollectsFailures(t *testing.T) {
	plan := planOf(4)
	boom := errors.New("boom")

	res, err := Run(context.Background(), plan, RewriterFunc(func(_ context.Context, _ string, g *FileGroup) error {
		if g.GlobalIndex == 1 {
			return boom
		}
		return nil
	}), 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rewritten) != 3 {
		t.Fatalf("rewritten = %d, want 3", len(res.Rewritten))
	}
	for i, g := range res.Rewritten {
		if want := []int{0, 2, 3}[i]; g.GlobalIndex != want {
			t.Fatalf("rewritten[%d] = group %d, want %d", i, g.GlobalIndex, want)
		}
	}
	if len(res.Failed) != 1 || res.Failed[0].Group.GlobalIndex != 1 || !errors.Is(res.Failed[0].Err, boom) {
		t.Fatalf("unexpected failures: %+v", res.Failed)
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	plan := planOf(8)
	var inFlight, peak atomic.Int32

	res, err := Run(context.Background(), plan, RewriterFunc(func(context.Context, string, *FileGroup) error {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}), 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rewritten) != 8 {
		t.Fatalf("rewritten = %d, want 8", len(res.Rewritten))
	}
	if p := peak.Load(); p > 3 || p < 1 {
		t.Fatalf("peak concurrency = %d, want 1..3", p)
	}
}

func TestRun_Cancelled(t *testing.T) {
	plan := planOf(5)
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var calls int
	res, err := Run(ctx, plan, RewriterFunc(func(context.Context, string, *FileGroup) error {
		mu.Lock()
		calls++
		mu.Unlock()
		cancel()
		return nil
	}), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 || len(res.Rewritten) != 1 {
		t.Fatalf("calls=%d rewritten=%d, want 1 and 1", calls, len(res.Rewritten))
	}
}

func TestRun_NoRewriter(t *testing.T) {
	if _, err := Run(context.Background(), planOf(1), nil, 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestLogRewriter(t *testing.T) {
	res, err := Run(context.Background(), planOf(2), LogRewriter{}, 0)
	if err != nil || len(res.Rewritten) != 2 {
		t.Fatalf("dry run: %v %+v", err, res)
	}
}
