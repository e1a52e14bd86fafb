package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docleaai/doclea/internal/config"
	"github.com/docleaai/doclea/internal/health"
	"github.com/docleaai/doclea/internal/mcptool"
	"github.com/docleaai/doclea/internal/observe"
)

// cmdServe runs doclea's long-lived server: an MCP tool host exposing every
// operation in spec.md §6 over stdio, fronted by a side HTTP listener
// carrying health/readiness probes and the Prometheus metrics endpoint the
// OTel provider registers (internal/observe).
func cmdServe(ctx context.Context, projectDir string, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("health-addr", ":8080", "listen address for health/readiness/metrics")
	if err := fs.Parse(args); err != nil {
		return exitGeneric
	}

	a, err := openApp(ctx, projectDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: serve: %v\n", err)
		return exitGeneric
	}
	defer a.Close()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "doclea"})
	if err != nil {
		slog.Warn("observability provider failed to start, continuing without it", "err", err)
		shutdownOTel = func(context.Context) error { return nil }
	}
	metrics := observe.DefaultMetrics()

	checker := health.New(
		health.Checker{Name: "relstore", Check: func(ctx context.Context) error {
			_, err := a.migrator.Plan(ctx, "")
			return err
		}},
		health.Checker{Name: "vectorstore", Check: func(ctx context.Context) error {
			_, err := a.vectors.Info(ctx)
			return err
		}},
	)
	mux := http.NewServeMux()
	checker.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	httpSrv := &http.Server{Addr: *addr, Handler: mux}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "doclea: serve: listen %s: %v\n", *addr, err)
		return exitGeneric
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.Serve(ln) }()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "doclea", Version: "0.1.0"}, nil)
	handlers := a.toolHandlers()
	for _, t := range mcptool.Catalog() {
		handler := t.Handler
		if handler == nil {
			handler = handlers[t.Definition.Name]
		}
		if handler == nil {
			handler = func(_ context.Context, _ string) (mcptool.ToolResult, error) {
				return mcptool.ToolResult{}, mcptool.ErrNotImplemented
			}
		}
		mcpSrv.AddTool(t.Definition.ToMCP(), mcpToolHandler(metrics, t.Definition.Name, handler))
	}

	slog.Info("doclea serving", "health_addr", *addr, "tools", len(mcptool.Catalog()))

	runErr := make(chan error, 1)
	go func() { runErr <- mcpSrv.Run(runCtx, &mcp.StdioTransport{}) }()

	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mcp server error", "err", err)
		}
	case <-runCtx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = shutdownOTel(shutdownCtx)
	return exitOK
}

// mcpToolHandler adapts a [mcptool.Handler] (JSON-string argument, typed
// result) to the SDK's untyped [mcp.ToolHandler] shape, recording per-call
// duration into the matching operation histogram and incrementing the store
// error counter on backend failure, the same attribution middleware.go uses
// for HTTP requests.
func mcpToolHandler(metrics *observe.Metrics, name string, h mcptool.Handler) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		var argBytes []byte
		if req != nil && req.Params != nil {
			argBytes = req.Params.Arguments
		}
		if argBytes == nil {
			argBytes = []byte("{}")
		}

		result, err := h(ctx, string(argBytes))
		elapsed := time.Since(start)
		result.DurationMs = elapsed.Milliseconds()
		recordToolDuration(metrics, name, elapsed.Seconds())
		if err != nil {
			if errors.Is(err, mcptool.ErrNotImplemented) {
				return &mcp.CallToolResult{
					Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: not implemented", name)}},
					IsError: true,
				}, nil
			}
			metrics.RecordStoreError(ctx, "mcptool")
			return nil, err
		}
		return result.ToCallToolResult(), nil
	}
}

// recordToolDuration routes a tool call's latency into whichever dedicated
// histogram internal/observe defines for that operation. Operations without
// a dedicated instrument are left unrecorded rather than forced into an
// unrelated bucket.
func recordToolDuration(metrics *observe.Metrics, name string, seconds float64) {
	ctx := context.Background()
	switch name {
	case mcptool.OpStore:
		metrics.StoreDuration.Record(ctx, seconds)
	case mcptool.OpSearch:
		metrics.SearchDuration.Record(ctx, seconds)
	case mcptool.OpDetectRelations, mcptool.OpSuggestRelations, mcptool.OpSuggestCrossLayer:
		metrics.DetectRelationsDuration.Record(ctx, seconds)
	case mcptool.OpGraphRAGSearch:
		metrics.GraphRAGSearchDuration.Record(ctx, seconds)
	}
}
