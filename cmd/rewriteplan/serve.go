package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"rewriteplan/internal/catalog"
	planhttp "rewriteplan/internal/http"
	"rewriteplan/pkg/metrics"
	"rewriteplan/pkg/scan"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the config file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := initConfig(*configPath)
	if err != nil {
		return err
	}
	initLogger(&cfg)

	cat, closeCatalog, err := openCatalog(ctx, cfg.Catalog)
	if err != nil {
		return err
	}
	defer closeCatalog()

	server := planhttp.NewServer(cat, metrics.NewRegistry(), cfg)
	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("shutting down")
	return server.Stop()
}

// runPublish copies every table of a YAML catalog into ZooKeeper.
func runPublish(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the config file")
	catalogPath := fs.String("catalog", "", "YAML catalog to publish")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *catalogPath == "" {
		return fmt.Errorf("%w: -catalog is required", errUsage)
	}

	cfg, err := initConfig(*configPath)
	if err != nil {
		return err
	}
	initLogger(&cfg)

	tables, err := catalog.ReadFile(*catalogPath)
	if err != nil {
		return err
	}

	zkCat, err := openZK(cfg.Catalog)
	if err != nil {
		return err
	}
	defer zkCat.Close()

	for _, md := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := zkCat.Put(md); err != nil {
			return err
		}
		slog.Info("table published", "table", md.TableName)
	}
	return nil
}

// runManifest converts a JSON array of file scan tasks into an Avro
// manifest.
func runManifest(args []string) error {
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	in := fs.String("in", "", "JSON file with an array of file scan tasks")
	out := fs.String("out", "", "manifest to write, .zst to compress")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("%w: -in and -out are required", errUsage)
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	var tasks []*scan.FileScanTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("parse %s: %w", *in, err)
	}
	for i, t := range tasks {
		if t == nil {
			return fmt.Errorf("%s: entry #%d is null", *in, i)
		}
	}
	return scan.CreateManifest(*out, tasks)
}
