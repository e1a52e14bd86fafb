package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/pkg/portable"
)

// cmdExport writes a portable export document (spec.md §4.M) capturing the
// project's full logical state — memories, relations, documents, cross-layer
// links, and pending suggestions — to stdout or -out.
func cmdExport(ctx context.Context, projectDir string, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", "", "output file path (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return exitGeneric
	}

	a, err := openApp(ctx, projectDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: export: %v\n", err)
		return exitGeneric
	}
	defer a.Close()

	stores := portable.Stores{Memories: a.relDB, Documents: a.relDB, CodeGraph: a.relDB}
	doc, err := portable.Export(ctx, stores, a.embedder, string(a.cfg.Storage.Backend), string(a.cfg.Vector.Provider), time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: export: %v\n", err)
		return exitGeneric
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "doclea: export: %v\n", err)
			return exitGeneric
		}
		defer f.Close()
		w = f
	}

	if err := portable.Encode(w, doc); err != nil {
		fmt.Fprintf(os.Stderr, "doclea: export: write: %v\n", err)
		return exitGeneric
	}
	return exitOK
}
