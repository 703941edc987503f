package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Planner.Strategy != Default().Planner.Strategy || cfg.Server.Port != 8080 {
		t.Fatalf("expected default config, got %+v", cfg)
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
logger:
  level: debug
  json: true
http-server:
  port: 9090
catalog:
  path: ""
  zk:
    servers: ["zk1:2181", "zk2:2181"]
    root: /maintenance
planner:
  strategy: SORT
  options:
    rewrite-all: "true"
    max-file-group-size-bytes: "1073741824"
  max_concurrent_rewrites: 4
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Logger.JSON || cfg.Logger.SlogLevel() != slog.LevelDebug {
		t.Fatalf("unexpected logger config %+v", cfg.Logger)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Fatalf("expected default shutdown timeout to survive, got %s", cfg.Server.ShutdownTimeout)
	}
	if len(cfg.Catalog.ZK.Servers) != 2 || cfg.Catalog.ZK.Root != "/maintenance" {
		t.Fatalf("unexpected zk config %+v", cfg.Catalog.ZK)
	}
	if cfg.Planner.Strategy != "SORT" || cfg.Planner.Options["rewrite-all"] != "true" {
		t.Fatalf("unexpected planner config %+v", cfg.Planner)
	}
	if cfg.Planner.MaxConcurrentRewrites != 4 {
		t.Fatalf("expected 4 concurrent rewrites, got %d", cfg.Planner.MaxConcurrentRewrites)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Logger.Level = "loud"
	cfg.Server.Port = 0
	cfg.Catalog.Path = ""
	cfg.Planner.MaxConcurrentRewrites = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, part := range []string{"logger.level", "http-server.port", "catalog", "max_concurrent_rewrites"} {
		if !strings.Contains(err.Error(), part) {
			t.Fatalf("expected %q in %v", part, err)
		}
	}
}
