package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Config - root of the planner configuration file.
type Config struct {
	Logger  LoggerConfig  `yaml:"logger" validate:"required"`
	Server  ServerConfig  `yaml:"http-server" validate:"required"`
	Catalog CatalogConfig `yaml:"catalog" validate:"required"`
	Planner PlannerConfig `yaml:"planner" validate:"required"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"required,min=1,max=65535"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CatalogConfig selects where table metadata comes from: a YAML file or
// ZooKeeper. Path wins when both are set.
type CatalogConfig struct {
	Path string   `yaml:"path"`
	ZK   ZKConfig `yaml:"zk"`
}

type ZKConfig struct {
	Servers        []string      `yaml:"servers"`
	Root           string        `yaml:"root"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type PlannerConfig struct {
	// Strategy used when a request does not name one.
	Strategy string `yaml:"strategy" validate:"required"`
	// Options applied under request options.
	Options               map[string]string `yaml:"options"`
	MaxConcurrentRewrites int               `yaml:"max_concurrent_rewrites" validate:"min=1"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 5 * time.Second,
		},
		Catalog: CatalogConfig{
			Path: "./catalog.yaml",
			ZK: ZKConfig{
				Root:           "/rewriteplan",
				SessionTimeout: 5 * time.Second,
			},
		},
		Planner: PlannerConfig{
			Strategy:              "BINPACK",
			Options:               map[string]string{},
			MaxConcurrentRewrites: 1,
		},
	}
}

// Load reads a YAML config on top of Default. A missing file yields Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Planner.Options == nil {
		cfg.Planner.Options = map[string]string{}
	}

	return cfg, cfg.Validate()
}

// Validate enforces the constraints declared in the validate tags.
func (c Config) Validate() error {
	var errs []error

	switch strings.ToUpper(c.Logger.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("logger.level: unsupported level %q", c.Logger.Level))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("http-server.port: %d out of range", c.Server.Port))
	}
	if c.Catalog.Path == "" && len(c.Catalog.ZK.Servers) == 0 {
		errs = append(errs, errors.New("catalog: either path or zk.servers is required"))
	}
	if c.Catalog.Path == "" && c.Catalog.ZK.Root == "" {
		errs = append(errs, errors.New("catalog.zk.root is required"))
	}
	if c.Planner.Strategy == "" {
		errs = append(errs, errors.New("planner.strategy is required"))
	}
	if c.Planner.MaxConcurrentRewrites < 1 {
		errs = append(errs, fmt.Errorf("planner.max_concurrent_rewrites: %d < 1", c.Planner.MaxConcurrentRewrites))
	}

	return errors.Join(errs...)
}

// SlogLevel maps the configured level to slog.
func (c LoggerConfig) SlogLevel() slog.Level {
	switch strings.ToUpper(c.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
