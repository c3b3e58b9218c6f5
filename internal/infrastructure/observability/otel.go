package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/medisync"

// Metrics holds the pipeline instruments
type Metrics struct {
	PlansScraped     metric.Int64Counter
	PlansReconciled  metric.Int64Counter
	ProviderFailures metric.Int64Counter
	ClinicsSynced    metric.Int64Counter
	ClinicsEnriched  metric.Int64Counter
	DBQueryDuration  metric.Float64Histogram
	CacheHitCount    metric.Int64Counter
	CacheMissCount   metric.Int64Counter
}

// Setup initializes OpenTelemetry traces, metrics and logs
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	// Set up trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set up metric exporter
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return nil, err
	}

	// Set up log exporter
	logExporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(endpoint),
		otlploggrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(loggerProvider)

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
			loggerProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes pipeline metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	plansScraped, err := meter.Int64Counter(
		"pipeline.plans.scraped",
		metric.WithDescription("Number of insurance plans assembled from provider sites"),
	)
	if err != nil {
		return nil, err
	}

	plansReconciled, err := meter.Int64Counter(
		"pipeline.plans.reconciled",
		metric.WithDescription("Number of insurance plans by reconciliation outcome"),
	)
	if err != nil {
		return nil, err
	}

	providerFailures, err := meter.Int64Counter(
		"pipeline.provider.failures",
		metric.WithDescription("Number of provider scrapes that produced no plans"),
	)
	if err != nil {
		return nil, err
	}

	clinicsSynced, err := meter.Int64Counter(
		"pipeline.clinics.synced",
		metric.WithDescription("Number of clinic rows written from the sheet"),
	)
	if err != nil {
		return nil, err
	}

	clinicsEnriched, err := meter.Int64Counter(
		"pipeline.clinics.enriched",
		metric.WithDescription("Number of clinic enrichment attempts by status"),
	)
	if err != nil {
		return nil, err
	}

	dbQueryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheHitCount, err := meter.Int64Counter(
		"cache.hit.count",
		metric.WithDescription("Number of cache hits"),
	)
	if err != nil {
		return nil, err
	}

	cacheMissCount, err := meter.Int64Counter(
		"cache.miss.count",
		metric.WithDescription("Number of cache misses"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		PlansScraped:     plansScraped,
		PlansReconciled:  plansReconciled,
		ProviderFailures: providerFailures,
		ClinicsSynced:    clinicsSynced,
		ClinicsEnriched:  clinicsEnriched,
		DBQueryDuration:  dbQueryDuration,
		CacheHitCount:    cacheHitCount,
		CacheMissCount:   cacheMissCount,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// SetSpanAttributes sets attributes on a span
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
}

// RecordPlansScraped counts assembled plans for one provider
func RecordPlansScraped(ctx context.Context, metrics *Metrics, provider string, count int) {
	if metrics == nil || count == 0 {
		return
	}
	metrics.PlansScraped.Add(ctx, int64(count), metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordReconciled counts plans for one reconciliation outcome
func RecordReconciled(ctx context.Context, metrics *Metrics, outcome string, count int) {
	if metrics == nil || count == 0 {
		return
	}
	metrics.PlansReconciled.Add(ctx, int64(count), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordProviderFailure counts a failed provider scrape
func RecordProviderFailure(ctx context.Context, metrics *Metrics, provider, reason string) {
	if metrics == nil {
		return
	}
	metrics.ProviderFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("reason", reason),
	))
}

// RecordClinicsSynced counts clinic rows by outcome
func RecordClinicsSynced(ctx context.Context, metrics *Metrics, outcome string, count int) {
	if metrics == nil || count == 0 {
		return
	}
	metrics.ClinicsSynced.Add(ctx, int64(count), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordClinicEnrichment counts one enrichment attempt
func RecordClinicEnrichment(ctx context.Context, metrics *Metrics, status string) {
	if metrics == nil {
		return
	}
	metrics.ClinicsEnriched.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDBMetric records a database operation metric
func RecordDBMetric(ctx context.Context, metrics *Metrics, operation string, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
	}
	metrics.DBQueryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordCacheHit records a cache hit
func RecordCacheHit(ctx context.Context, metrics *Metrics, key string) {
	if metrics == nil {
		return
	}
	metrics.CacheHitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.key", key)))
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(ctx context.Context, metrics *Metrics, key string) {
	if metrics == nil {
		return
	}
	metrics.CacheMissCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.key", key)))
}

// EmitRunSummary writes one OTel log record describing a finished pipeline run.
// Without a configured log provider the record is dropped by the no-op logger.
func EmitRunSummary(ctx context.Context, run string, counts map[string]int) {
	logger := global.GetLoggerProvider().Logger(instrumentationName)

	var record otellog.Record
	record.SetTimestamp(time.Now())
	record.SetSeverity(otellog.SeverityInfo)
	record.SetSeverityText("INFO")
	record.SetBody(otellog.StringValue(run + " finished"))
	record.AddAttributes(otellog.String("pipeline.run", run))
	for key, value := range counts {
		record.AddAttributes(otellog.Int(key, value))
	}
	logger.Emit(ctx, record)
}
