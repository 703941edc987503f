package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"

	"rewriteplan/internal/engine"
	planhttp "rewriteplan/internal/http"
	"rewriteplan/internal/strategy"
	"rewriteplan/pkg/config"
	"rewriteplan/pkg/metrics"
	"rewriteplan/pkg/planerr"
	"rewriteplan/pkg/scan"
	"rewriteplan/pkg/table"
)

type planArgs struct {
	config   string
	table    string
	manifest string
	strategy string
	server   string
	dryRun   bool
	options  optionFlags
	sortKeys listFlags
}

func parsePlanArgs(args []string) (planArgs, error) {
	pa := planArgs{options: optionFlags{}}

	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.StringVar(&pa.config, "config", "config.yaml", "path to the config file")
	fs.StringVar(&pa.table, "table", "", "table to plan")
	fs.StringVar(&pa.manifest, "manifest", "", "Avro manifest of candidate data files, .zst compressed or plain")
	fs.StringVar(&pa.strategy, "strategy", "", "strategy name, defaults to planner.strategy")
	fs.StringVar(&pa.server, "server", "", "base URL of a planning server to plan remotely")
	fs.BoolVar(&pa.dryRun, "dry-run", false, "log every planned group as a rewrite")
	fs.Var(pa.options, "o", "strategy option key=value, repeatable")
	fs.Var(&pa.sortKeys, "sort", `sort key "column [asc|desc] [nulls-first|nulls-last]", repeatable`)
	if err := fs.Parse(args); err != nil {
		return pa, fmt.Errorf("%w: %v", errUsage, err)
	}

	switch {
	case pa.table == "":
		return pa, fmt.Errorf("%w: -table is required", errUsage)
	case pa.manifest == "":
		return pa, fmt.Errorf("%w: -manifest is required", errUsage)
	case pa.server != "" && len(pa.sortKeys) > 0:
		return pa, fmt.Errorf("%w: -sort cannot be used with -server", errUsage)
	}
	return pa, nil
}

func runPlan(ctx context.Context, args []string, out io.Writer) error {
	pa, err := parsePlanArgs(args)
	if err != nil {
		return err
	}

	cfg, err := initConfig(pa.config)
	if err != nil {
		return err
	}
	initLogger(&cfg)

	reader, err := scan.OpenManifest(pa.manifest)
	if err != nil {
		return err
	}
	defer reader.Close()

	var plan *engine.Plan
	if pa.server != "" {
		plan, err = planRemote(ctx, pa, reader)
	} else {
		plan, err = planLocal(ctx, pa, cfg, reader)
	}
	if err != nil {
		return err
	}

	if pa.dryRun {
		res, err := engine.Run(ctx, plan, engine.LogRewriter{}, cfg.Planner.MaxConcurrentRewrites)
		if err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d of %d groups failed", len(res.Failed), len(plan.Groups))
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

func planLocal(ctx context.Context, pa planArgs, cfg config.Config, reader *scan.ManifestReader) (*engine.Plan, error) {
	cat, closeCatalog, err := openCatalog(ctx, cfg.Catalog)
	if err != nil {
		return nil, err
	}
	defer closeCatalog()

	tbl, err := cat.LoadTable(ctx, pa.table)
	if err != nil {
		return nil, err
	}

	name := pa.strategy
	if name == "" {
		name = cfg.Planner.Strategy
	}
	options := maps.Clone(cfg.Planner.Options)
	if options == nil {
		options = map[string]string{}
	}
	maps.Copy(options, pa.options)

	req := strategy.Request{Options: options}
	if len(pa.sortKeys) > 0 {
		order, err := table.NewSortOrder(tbl.Schema(), 1, pa.sortKeys...)
		if err != nil {
			return nil, planerr.ConfigWrap(name, tbl.Name(), err, "invalid sort keys")
		}
		req.SortOrder = &order
	}

	strat, err := strategy.Build(name, tbl, req)
	if err != nil {
		if errors.Is(err, planerr.ErrUnknownStrategy) {
			return nil, fmt.Errorf("%w %q, valid strategies are %v", err, name, strategy.Names())
		}
		return nil, err
	}

	plan, err := engine.NewPlanner(strat, metrics.Nop{}).Plan(ctx, tbl, reader.Tasks())
	if err != nil {
		return nil, err
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return plan, nil
}

func planRemote(ctx context.Context, pa planArgs, reader *scan.ManifestReader) (*engine.Plan, error) {
	files := slices.Collect(reader.Tasks())
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return planhttp.NewClient(pa.server).Plan(ctx, pa.table, planhttp.PlanRequest{
		Strategy: pa.strategy,
		Options:  pa.options,
		Files:    files,
	})
}
