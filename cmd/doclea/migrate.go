package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/relstore"
)

// cmdMigrate applies (or previews, or reverts) pending relational schema
// migrations against the project's configured store, per spec.md §4.C. The
// verb defaults to "apply"; "plan" only reports what would run and "rollback"
// reverts down to -target.
func cmdMigrate(ctx context.Context, projectDir string, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	target := fs.String("target", "", "target schema version (empty: latest for apply, all-the-way for rollback)")
	verb := "apply"
	if len(args) > 0 && !isFlagArg(args[0]) {
		verb = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return exitGeneric
	}

	a, err := openApp(ctx, projectDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: migrate: %v\n", err)
		return exitMigrationFailed
	}
	defer a.Close()

	var res *relstore.PlanResult
	switch verb {
	case "plan":
		res, err = a.migrator.Plan(ctx, *target)
	case "apply":
		res, err = a.migrator.Apply(ctx, *target)
	case "rollback":
		res, err = a.migrator.Rollback(ctx, *target)
	default:
		fmt.Fprintf(os.Stderr, "doclea: migrate: unknown verb %q (want plan, apply, or rollback)\n", verb)
		return exitGeneric
	}
	if err != nil && res == nil {
		fmt.Fprintf(os.Stderr, "doclea: migrate: %s: %v\n", verb, err)
		return exitMigrationFailed
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)

	if !res.Success {
		return exitMigrationFailed
	}
	return exitOK
}

// isFlagArg reports whether s looks like a flag (-target=...) rather than a
// migrate verb (plan/apply/rollback).
func isFlagArg(s string) bool {
	return len(s) > 0 && s[0] == '-'
}
