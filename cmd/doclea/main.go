// Command doclea is the thin CLI entrypoint over the persistent-memory
// engine: it loads the project config, wires the relational/vector/
// embedding/GraphRAG backends, and dispatches to one of a handful of
// subcommands. Exit codes follow spec.md §6: 0 success, 1 generic failure,
// 2 config error, 3 migration failure, 4 retrieval-quality-gate failed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/docleaai/doclea/internal/config"
)

const (
	exitOK               = 0
	exitGeneric          = 1
	exitConfig           = 2
	exitMigrationFailed  = 3
	exitQualityGateFailed = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := flag.NewFlagSet("doclea", flag.ContinueOnError)
	projectDir := root.String("project", ".", "project root containing .doclea/")
	logLevel := root.String("log-level", "info", "log level: debug, info, warn, error")
	// flag.Parse stops at the first non-flag argument, so global flags may
	// precede the subcommand name; everything from the subcommand onward
	// is left in root.Args() for the subcommand's own flag set to parse.
	if err := root.Parse(args); err != nil {
		return exitGeneric
	}
	if root.NArg() == 0 {
		printUsage()
		return exitGeneric
	}

	slog.SetDefault(newLogger(*logLevel))

	cfg, err := config.Load(configPath(*projectDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "doclea: config file not found — create %s to get started\n", configPath(*projectDir))
		} else {
			fmt.Fprintf(os.Stderr, "doclea: config error: %v\n", err)
		}
		return exitConfig
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "doclea: config invalid: %v\n", err)
		return exitConfig
	}

	ctx := context.Background()

	subArgs := root.Args()[1:]
	switch cmd := root.Arg(0); cmd {
	case "serve":
		return cmdServe(ctx, *projectDir, cfg, subArgs)
	case "migrate":
		return cmdMigrate(ctx, *projectDir, cfg, subArgs)
	case "export":
		return cmdExport(ctx, *projectDir, cfg, subArgs)
	case "import":
		return cmdImport(ctx, *projectDir, cfg, subArgs)
	case "quality-gate":
		return cmdQualityGate(ctx, *projectDir, cfg, subArgs)
	default:
		fmt.Fprintf(os.Stderr, "doclea: unknown command %q\n", cmd)
		printUsage()
		return exitGeneric
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: doclea [-project dir] [-log-level level] <command> [args]

commands:
  serve          run the long-lived server (health/readiness/metrics endpoints)
  migrate        apply pending relational schema migrations
  export         write a portable export document
  import         apply a portable export document
  quality-gate   run a golden-query retrieval quality gate`)
}

func configPath(projectDir string) string {
	return projectDir + "/.doclea/config.json"
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
