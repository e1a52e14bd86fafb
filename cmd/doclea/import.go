package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/portable"
)

// cmdImport applies a portable export document (spec.md §4.M) against the
// project's stores, with a caller-selectable conflict strategy for rows that
// already exist.
func cmdImport(ctx context.Context, projectDir string, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	in := fs.String("in", "", "input file path (required)")
	conflict := fs.String("conflict", string(portable.ConflictSkip), "conflict strategy: skip, overwrite, or error")
	reembed := fs.Bool("reembed", false, "regenerate vectors with the configured embedding provider instead of trusting the export's")
	relations := fs.Bool("relations", true, "import memory relations")
	pending := fs.Bool("pending", true, "import pending relation suggestions")
	if err := fs.Parse(args); err != nil {
		return exitGeneric
	}
	if *in == "" {
		fmt.Fprintln(os.Stderr, "doclea: import: -in is required")
		return exitGeneric
	}

	f, err := os.Open(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: import: %v\n", err)
		return exitGeneric
	}
	defer f.Close()

	doc, err := portable.Load(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: import: %v\n", err)
		return exitGeneric
	}

	a, err := openApp(ctx, projectDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: import: %v\n", err)
		return exitGeneric
	}
	defer a.Close()

	opts := portable.Options{
		Conflict:        portable.ConflictStrategy(*conflict),
		Reembed:         *reembed,
		ImportRelations: *relations,
		ImportPending:   *pending,
	}
	stores := portable.Stores{Memories: a.relDB, Documents: a.relDB, CodeGraph: a.relDB}

	res, err := portable.Import(ctx, stores, a.vectors, a.embedder, doc, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: import: %v\n", err)
		return exitGeneric
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
	return exitOK
}
