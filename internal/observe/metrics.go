// Package observe provides application-wide observability primitives for
// doclea: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all doclea metrics.
const meterName = "github.com/docleaai/doclea"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per operation (spec.md §6 tool surface) ---

	// StoreDuration tracks the store operation's end-to-end latency
	// (persist row + embed + upsert).
	StoreDuration metric.Float64Histogram

	// SearchDuration tracks the search operation's latency (scored
	// semantic fetch over memories).
	SearchDuration metric.Float64Histogram

	// DetectRelationsDuration tracks a relation-detection run's latency.
	DetectRelationsDuration metric.Float64Histogram

	// GraphRAGSearchDuration tracks a GraphRAG local/global search's
	// latency.
	GraphRAGSearchDuration metric.Float64Histogram

	// EmbedDuration tracks embedding-provider call latency. Use with
	// attributes: attribute.String("provider", ...), attribute.String("phase", ...).
	EmbedDuration metric.Float64Histogram

	// VectorSearchDuration tracks vector-store KNN call latency.
	VectorSearchDuration metric.Float64Histogram

	// --- Counters ---

	// EmbedRequests counts embedding-provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("phase", ...), attribute.String("status", ...)
	EmbedRequests metric.Int64Counter

	// ContextCacheHits counts context-builder cache hits/misses. Use with
	// attribute.String("result", "hit"|"miss").
	ContextCacheHits metric.Int64Counter

	// SuggestionsCreated counts relation/cross-layer suggestions created,
	// by attribute.String("kind", "relation"|"crosslayer") and
	// attribute.String("outcome", "auto_approved"|"suggested"|"discarded").
	SuggestionsCreated metric.Int64Counter

	// --- Error counters ---

	// EmbedErrors counts embedding-provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("phase", ...)
	EmbedErrors metric.Int64Counter

	// StoreErrors counts relational/vector store errors surfaced to a
	// caller, attributed with attribute.String("backend", name); the MCP
	// tool handler wrapper in cmd/doclea records "mcptool".
	StoreErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveDetectionJobs tracks the number of in-flight relation/cross-
	// layer detection jobs.
	ActiveDetectionJobs metric.Int64UpDownCounter

	// ContextCacheSize tracks the number of entries currently held by the
	// context builder's cache.
	ContextCacheSize metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// a fast vector lookup up to a slow multi-leg context build.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StoreDuration, err = m.Float64Histogram("doclea.store.duration",
		metric.WithDescription("Latency of storing a memory (persist, embed, upsert)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SearchDuration, err = m.Float64Histogram("doclea.search.duration",
		metric.WithDescription("Latency of a retrieval search request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DetectRelationsDuration, err = m.Float64Histogram("doclea.detect_relations.duration",
		metric.WithDescription("Latency of a relation-detection run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GraphRAGSearchDuration, err = m.Float64Histogram("doclea.graphrag_search.duration",
		metric.WithDescription("Latency of a GraphRAG local or global search."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("doclea.embed.duration",
		metric.WithDescription("Latency of embedding-provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VectorSearchDuration, err = m.Float64Histogram("doclea.vectorstore.search.duration",
		metric.WithDescription("Latency of vector-store KNN search calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.EmbedRequests, err = m.Int64Counter("doclea.embed.requests",
		metric.WithDescription("Total embedding-provider requests by provider, phase, and status."),
	); err != nil {
		return nil, err
	}
	if met.ContextCacheHits, err = m.Int64Counter("doclea.context_cache.lookups",
		metric.WithDescription("Total context-cache lookups by result (hit/miss)."),
	); err != nil {
		return nil, err
	}
	if met.SuggestionsCreated, err = m.Int64Counter("doclea.suggestions.created",
		metric.WithDescription("Total relation/cross-layer suggestions created by kind and outcome."),
	); err != nil {
		return nil, err
	}

	if met.EmbedErrors, err = m.Int64Counter("doclea.embed.errors",
		metric.WithDescription("Total embedding-provider errors by provider and phase."),
	); err != nil {
		return nil, err
	}
	if met.StoreErrors, err = m.Int64Counter("doclea.store.errors",
		metric.WithDescription("Total relational/vector store errors by backend."),
	); err != nil {
		return nil, err
	}

	if met.ActiveDetectionJobs, err = m.Int64UpDownCounter("doclea.detection.active_jobs",
		metric.WithDescription("Number of in-flight relation/cross-layer detection jobs."),
	); err != nil {
		return nil, err
	}
	if met.ContextCacheSize, err = m.Int64UpDownCounter("doclea.context_cache.size",
		metric.WithDescription("Number of entries currently held by the context cache."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("doclea.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordEmbedRequest records an embedding-provider request counter
// increment with the standard attribute set.
func (m *Metrics) RecordEmbedRequest(ctx context.Context, provider, phase, status string) {
	m.EmbedRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("phase", phase),
			attribute.String("status", status),
		),
	)
}

// RecordContextCacheLookup records a context-cache hit or miss.
func (m *Metrics) RecordContextCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ContextCacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordSuggestionCreated records a relation/cross-layer suggestion outcome.
func (m *Metrics) RecordSuggestionCreated(ctx context.Context, kind, outcome string) {
	m.SuggestionsCreated.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordEmbedError records an embedding-provider error counter increment.
func (m *Metrics) RecordEmbedError(ctx context.Context, provider, phase string) {
	m.EmbedErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("phase", phase),
		),
	)
}

// RecordStoreError records a relational/vector store error counter
// increment.
func (m *Metrics) RecordStoreError(ctx context.Context, backend string) {
	m.StoreErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}
