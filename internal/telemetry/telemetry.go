// Package telemetry wires OpenTelemetry tracing and a Prometheus metrics
// registry for the gateway.
//
// The teacher pack references an OTel exporter (cmd/gateway.go calls
// initOTelExporter behind a `-tags otel` build constraint) but the
// function itself isn't present in the retrieved pack — an incomplete
// stub. Rather than carry forward code that can't compile, telemetry is
// wired here directly and unconditionally, toggled by config.Telemetry
// rather than a build tag.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/config"
)

// Telemetry bundles the tracer used for component spans and the
// Prometheus registry served at /metrics.
type Telemetry struct {
	Tracer   trace.Tracer
	Registry *prometheus.Registry

	JobsEnqueued  prometheus.Counter
	JobsCompleted *prometheus.CounterVec
	SDRequestSecs *prometheus.HistogramVec

	shutdown func(context.Context) error
}

// Init sets up tracing and metrics per cfg. When cfg.Enabled is false, it
// returns a Telemetry with the global tracer (a no-op unless a provider was
// installed elsewhere) and the same registered metrics, so callers don't
// need to branch on whether telemetry is on.
func Init(cfg config.TelemetryConfig) (*Telemetry, error) {
	registry := prometheus.NewRegistry()
	t := &Telemetry{
		Registry: registry,
		JobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sdforge_jobs_enqueued_total",
			Help: "Total number of generation jobs enqueued.",
		}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sdforge_jobs_completed_total",
			Help: "Total number of generation jobs reaching a terminal state, by status.",
		}, []string{"status"}),
		SDRequestSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sdforge_sd_request_duration_seconds",
			Help:    "Latency of SD engine HTTP calls, by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	registry.MustRegister(t.JobsEnqueued, t.JobsCompleted, t.SDRequestSecs)

	if !cfg.Enabled {
		t.Tracer = otel.Tracer("sdforge-gateway")
		t.shutdown = func(context.Context) error { return nil }
		return t, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "create otlp trace exporter", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "build otel resource", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	t.Tracer = provider.Tracer("sdforge-gateway")
	t.shutdown = provider.Shutdown
	return t, nil
}

// Shutdown flushes and closes the tracer provider, if one was started.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}

// MetricsHandler serves the Prometheus registry in the standard exposition
// format.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{})
}
