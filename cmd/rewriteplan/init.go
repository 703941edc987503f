package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"rewriteplan/internal/catalog"
	"rewriteplan/pkg/config"
)

// initConfig loads the YAML config. A missing file yields config.Default().
func initConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// initLogger sets up the global slog.Logger (JSON or text). Logs go to
// stderr so plan output on stdout stays machine readable.
func initLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{AddSource: true, Level: cfg.Logger.SlogLevel()}
	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
}

// openCatalog picks the YAML catalog when a path is configured, ZooKeeper
// otherwise. The returned func releases it.
func openCatalog(ctx context.Context, cfg config.CatalogConfig) (catalog.Catalog, func(), error) {
	if cfg.Path != "" {
		m, err := catalog.LoadYAML(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	}

	zkCat, err := openZK(cfg)
	if err != nil {
		return nil, nil, err
	}
	zkCat.Watch(ctx, func(tables []string) {
		slog.Info("catalog tables changed", "tables", tables)
	})
	return zkCat, func() { _ = zkCat.Close() }, nil
}

func openZK(cfg config.CatalogConfig) (*catalog.ZK, error) {
	if len(cfg.ZK.Servers) == 0 {
		return nil, fmt.Errorf("catalog.zk.servers is empty")
	}
	return catalog.NewZK(cfg.ZK.Servers, cfg.ZK.Root, cfg.ZK.SessionTimeout)
}
