package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/docleaai/doclea/internal/config"
	dcontext "github.com/docleaai/doclea/pkg/context"
	"github.com/docleaai/doclea/pkg/embedding/hashembed"
	"github.com/docleaai/doclea/pkg/portable"
)

// cmdQualityGate runs a golden-query retrieval quality gate (spec.md §4.M)
// against the project's store. Embeddings are generated with
// [hashembed.Provider] rather than the configured provider so the gate is
// reproducible without a live embedding API — -seed optionally imports a
// portable export document (re-embedded through the same hash projection)
// before evaluating, giving the fixture's golden queries something
// deterministic to retrieve.
func cmdQualityGate(ctx context.Context, projectDir string, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("quality-gate", flag.ContinueOnError)
	fixturePath := fs.String("fixture", "", "golden-query YAML fixture (required)")
	seedPath := fs.String("seed", "", "optional portable export document to import (hash-embedded) before evaluating")
	if err := fs.Parse(args); err != nil {
		return exitGeneric
	}
	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "doclea: quality-gate: -fixture is required")
		return exitGeneric
	}

	ff, err := os.Open(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: quality-gate: %v\n", err)
		return exitGeneric
	}
	defer ff.Close()
	fixture, err := portable.LoadFixture(ff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: quality-gate: %v\n", err)
		return exitGeneric
	}

	a, err := openApp(ctx, projectDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: quality-gate: %v\n", err)
		return exitGeneric
	}
	defer a.Close()

	dims := cfg.Vector.VectorSize
	if dims <= 0 {
		dims = 64
	}
	hashProvider := hashembed.New(dims)

	if *seedPath != "" {
		sf, err := os.Open(*seedPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "doclea: quality-gate: %v\n", err)
			return exitGeneric
		}
		doc, err := portable.Load(sf)
		sf.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "doclea: quality-gate: %v\n", err)
			return exitGeneric
		}
		stores := portable.Stores{Memories: a.relDB, Documents: a.relDB, CodeGraph: a.relDB}
		opts := portable.Options{Conflict: portable.ConflictOverwrite, Reembed: true, ImportRelations: true, ImportPending: true}
		if _, err := portable.Import(ctx, stores, a.vectors, hashProvider, doc, opts); err != nil {
			fmt.Fprintf(os.Stderr, "doclea: quality-gate: seed import: %v\n", err)
			return exitGeneric
		}
	}

	builder := dcontext.New(a.relDB, a.vectors, hashProvider, cfg.Scoring, cfg.ContextCache,
		dcontext.WithCodeGraph(a.relDB),
		dcontext.WithGraphRAG(a.graphrag),
	)

	report, err := portable.Evaluate(ctx, builder, fixture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: quality-gate: %v\n", err)
		return exitGeneric
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)

	if !report.Pass {
		for _, o := range report.Outcomes {
			if !o.Pass {
				fmt.Fprintln(os.Stderr, o.Diff)
			}
		}
		return exitQualityGateFailed
	}
	return exitOK
}
