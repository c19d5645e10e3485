// Package telemetry wires structured logging (log/slog) and OpenTelemetry
// tracing/metrics the way internal/hooks/hooks_otel.go instruments beads'
// hook execution: spans around engine operations with typed attributes,
// counters exported through the same otel SDK stack. No global logger or
// tracer is held here; each Telemetry built by New owns its own logger,
// tracer and meter provider.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer and the counters named in spec §6.2
// (queries_total, queries_duration_seconds, cache_hits_total,
// cache_misses_total, nodes_total, relationships_total,
// memory_usage_bytes). It is not itself a Prometheus endpoint — §6.2's
// REST surface is out of core scope — and it has no accessor for reading
// the counters back; their values leave the process only through the
// configured metric exporter.
type Telemetry struct {
	Log    *slog.Logger
	tracer trace.Tracer

	queriesTotal    metric.Int64Counter
	queryDuration   metric.Float64Histogram
	cacheHitsTotal  metric.Int64Counter
	cacheMissTotal  metric.Int64Counter
	nodesTotal      metric.Int64UpDownCounter
	relsTotal       metric.Int64UpDownCounter
	memoryUsageBytes metric.Int64ObservableGauge

	meterProvider *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider

	slowQueryThreshold time.Duration
}

// Option configures New.
type Option func(*options)

type options struct {
	jsonLogs     bool
	level        slog.Level
	otlpEndpoint string
}

// WithJSONLogs switches the logger to JSON output (production mode); text
// handler is the default, matching the teacher's dev-friendly stderr logs.
func WithJSONLogs() Option { return func(o *options) { o.jsonLogs = true } }

// WithLevel sets the minimum log level.
func WithLevel(l slog.Level) Option { return func(o *options) { o.level = l } }

// WithOTLPEndpoint switches the metric exporter from stdout to OTLP over
// HTTP at endpoint (spec §6.5's telemetry.otlp_endpoint config key), for
// real deployments that ship metrics to a collector instead of stderr.
func WithOTLPEndpoint(endpoint string) Option {
	return func(o *options) { o.otlpEndpoint = endpoint }
}

// New builds a Telemetry with a metric exporter (stdout by default — the
// teacher's go.mod carries exactly this exporter among its otel deps — or
// OTLP over HTTP when WithOTLPEndpoint is set) and an in-process tracer;
// slowQueryThreshold gates the slow-query log line.
func New(slowQueryThreshold time.Duration, opts ...Option) (*Telemetry, error) {
	o := &options{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(o)
	}

	var handler slog.Handler
	if o.jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: o.level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: o.level})
	}
	logger := slog.New(handler)

	readerOpt, err := metricReaderOption(o.otlpEndpoint)
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(readerOpt)
	meter := mp.Meter("github.com/nexusdb/nexus")

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))

	queriesTotal, err := meter.Int64Counter("queries_total")
	if err != nil {
		return nil, err
	}
	queryDuration, err := meter.Float64Histogram("queries_duration_seconds")
	if err != nil {
		return nil, err
	}
	cacheHits, err := meter.Int64Counter("cache_hits_total")
	if err != nil {
		return nil, err
	}
	cacheMisses, err := meter.Int64Counter("cache_misses_total")
	if err != nil {
		return nil, err
	}
	nodesTotal, err := meter.Int64UpDownCounter("nodes_total")
	if err != nil {
		return nil, err
	}
	relsTotal, err := meter.Int64UpDownCounter("relationships_total")
	if err != nil {
		return nil, err
	}
	memBytes, err := meter.Int64ObservableGauge("memory_usage_bytes")
	if err != nil {
		return nil, err
	}

	tracer := tp.Tracer("github.com/nexusdb/nexus")

	return &Telemetry{
		Log:                logger,
		tracer:             tracer,
		queriesTotal:       queriesTotal,
		queryDuration:      queryDuration,
		cacheHitsTotal:     cacheHits,
		cacheMissTotal:     cacheMisses,
		nodesTotal:         nodesTotal,
		relsTotal:          relsTotal,
		memoryUsageBytes:   memBytes,
		meterProvider:      mp,
		tracerProvider:     tp,
		slowQueryThreshold: slowQueryThreshold,
	}, nil
}

// metricReaderOption picks the metric exporter: OTLP over HTTP when
// otlpEndpoint is set (spec §6.5's telemetry.otlp_endpoint, for shipping
// metrics to a real collector), stdout otherwise (the teacher's go.mod
// default exporter).
func metricReaderOption(otlpEndpoint string) (sdkmetric.Option, error) {
	if otlpEndpoint != "" {
		exp, err := otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(otlpEndpoint),
			otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		return sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)), nil
	}
	exp, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
	}
	return sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)), nil
}

// StartSpan starts a traced operation, mirroring the span-per-hook pattern
// in hooks_otel.go.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordQuery records a completed query's duration and logs a slow-query
// line when it exceeds the configured threshold.
func (t *Telemetry) RecordQuery(ctx context.Context, text string, dur time.Duration, rows int, err error) {
	t.queriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("error", err != nil)))
	t.queryDuration.Record(ctx, dur.Seconds())
	if dur >= t.slowQueryThreshold {
		t.Log.WarnContext(ctx, "slow query",
			slog.String("query", text),
			slog.Duration("duration", dur),
			slog.Int("rows", rows))
	}
}

// RecordCacheHit/RecordCacheMiss back the page-cache hit/miss counters from
// spec §4.2's required statistics.
func (t *Telemetry) RecordCacheHit(ctx context.Context)  { t.cacheHitsTotal.Add(ctx, 1) }
func (t *Telemetry) RecordCacheMiss(ctx context.Context) { t.cacheMissTotal.Add(ctx, 1) }

// AdjustNodeCount and AdjustRelCount track the live entity counts exposed
// by GET /stats (spec §6.2); positive delta on create, negative on delete.
func (t *Telemetry) AdjustNodeCount(ctx context.Context, delta int64) { t.nodesTotal.Add(ctx, delta) }
func (t *Telemetry) AdjustRelCount(ctx context.Context, delta int64)  { t.relsTotal.Add(ctx, delta) }

// Shutdown drains the meter and tracer providers, flushing any buffered
// metrics and spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return t.meterProvider.Shutdown(ctx)
}
