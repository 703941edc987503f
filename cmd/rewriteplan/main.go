// Command rewriteplan plans rewrites of table data files.
//
//	rewriteplan plan -config cfg.yaml -table db.events -manifest files.avro.zst [-strategy SORT] [-o key=value ...]
//	rewriteplan serve -config cfg.yaml
//	rewriteplan publish -config cfg.yaml -catalog tables.yaml
//	rewriteplan manifest -in files.json -out files.avro.zst
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rewriteplan/pkg/planerr"
)

const usage = `usage: rewriteplan <command> [flags]

commands:
  plan      plan a rewrite of one table from a data file manifest
  serve     run the planning HTTP API
  publish   copy tables from a YAML catalog into the ZooKeeper catalog
  manifest  write an Avro manifest from a JSON list of data files
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "rewriteplan:", err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errUsage
	}

	switch args[0] {
	case "plan":
		return runPlan(ctx, args[1:], os.Stdout)
	case "serve":
		return runServe(ctx, args[1:])
	case "publish":
		return runPublish(ctx, args[1:])
	case "manifest":
		return runManifest(args[1:])
	case "help", "-h", "-help", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

var errUsage = errors.New("invalid usage")

func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, planerr.ErrInvalidConfig), errors.Is(err, planerr.ErrUnknownStrategy):
		return 3
	case errors.Is(err, planerr.ErrTableNotFound):
		return 4
	default:
		return 1
	}
}

// optionFlags collects repeated -o key=value flags.
type optionFlags map[string]string

func (o optionFlags) String() string {
	parts := make([]string, 0, len(o))
	for k, v := range o {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (o optionFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("option %q is not key=value", s)
	}
	o[strings.TrimSpace(k)] = v
	return nil
}

// listFlags collects a repeated string flag.
type listFlags []string

func (l *listFlags) String() string { return strings.Join(*l, ",") }

func (l *listFlags) Set(s string) error {
	*l = append(*l, s)
	return nil
}
