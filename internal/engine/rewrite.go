package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Rewriter performs the rewrite of one file group: read the files, sort or
// merge their rows and write the replacement files.
type Rewriter interface {
	Rewrite(ctx context.Context, tableName string, group *FileGroup) error
}

// RewriterFunc adapts a function to Rewriter.
type RewriterFunc func(ctx context.Context, tableName string, group *FileGroup) error

func (f RewriterFunc) Rewrite(ctx context.Context, tableName string, group *FileGroup) error {
	return f(ctx, tableName, group)
}

// GroupFailure records a group whose rewrite returned an error.
type GroupFailure struct {
	Group *FileGroup
	Err   error
}

// Result summarises the execution of a plan. Groups are listed by global
// index.
type Result struct {
	Rewritten []*FileGroup
	Failed    []GroupFailure
}

// Run hands every group of plan to rewriter with at most maxConcurrent
// rewrites in flight. A failing group does not stop the others. If ctx is
// cancelled no new group is started and ctx.Err() is returned along with
// what completed.
func Run(ctx context.Context, plan *Plan, rewriter Rewriter, maxConcurrent int) (Result, error) {
	if rewriter == nil {
		return Result{}, fmt.Errorf("engine: no rewriter")
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	outcome := make([]error, len(plan.Groups))
	started := make([]bool, len(plan.Groups))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	var runErr error
loop:
	for i, g := range plan.Groups {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case sem <- struct{}{}:
		}
		// Both cases may be ready at once.
		if err := ctx.Err(); err != nil {
			<-sem
			runErr = err
			break
		}

		started[i] = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcome[i] = rewriter.Rewrite(ctx, plan.Table, g)
		}()
	}
	wg.Wait()

	var res Result
	for i, g := range plan.Groups {
		if !started[i] {
			continue
		}
		if err := outcome[i]; err != nil {
			slog.Error("file group rewrite failed",
				"table", plan.Table, "group", g.ID, "index", g.GlobalIndex, "error", err)
			res.Failed = append(res.Failed, GroupFailure{Group: g, Err: err})
			continue
		}
		res.Rewritten = append(res.Rewritten, g)
	}

	slog.Info("rewrite plan executed",
		"table", plan.Table,
		"plan_id", plan.ID,
		"rewritten", len(res.Rewritten),
		"failed", len(res.Failed),
		"skipped", len(plan.Groups)-len(res.Rewritten)-len(res.Failed),
	)
	return res, runErr
}

// LogRewriter only logs each group. It backs dry runs.
type LogRewriter struct {
	Logger *slog.Logger
}

func (r LogRewriter) Rewrite(ctx context.Context, tableName string, group *FileGroup) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "dry run rewrite",
		"table", tableName,
		"group", group.ID,
		"partition", group.Partition,
		"files", len(group.Files),
		"bytes", group.SizeBytes,
	)
	return nil
}
