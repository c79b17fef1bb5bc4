// Package telemetry wires OpenTelemetry metrics and tracing for the harness.
//
// Metrics are exported through a Prometheus registry owned by the Telemetry
// value and served by Handler. Tracing, when enabled, writes spans to the
// configured writer.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/GoSim-25-26J-441/simtune/pkg/config"
)

// ServiceName is the resource service name reported by the harness
const ServiceName = "simtune"

// Telemetry holds the installed providers
type Telemetry struct {
	registry *prom.Registry
	meters   *sdkmetric.MeterProvider
	tracer   *sdktrace.TracerProvider
}

// Setup installs the providers enabled in cfg as the otel globals. A nil cfg
// or disabled entries leave the corresponding global untouched.
func Setup(cfg *config.Telemetry, traceOut io.Writer) (*Telemetry, error) {
	t := &Telemetry{}
	if cfg == nil {
		return t, nil
	}
	if cfg.Metrics {
		registry, mp, err := InitMetrics(ServiceName)
		if err != nil {
			return nil, err
		}
		t.registry, t.meters = registry, mp
	}
	if cfg.Tracing {
		tp, err := InitTracing(ServiceName, traceOut)
		if err != nil {
			_ = t.Shutdown(context.Background())
			return nil, err
		}
		t.tracer = tp
	}
	return t, nil
}

// InitMetrics creates a meter provider exporting into a fresh Prometheus
// registry and installs it as the global meter provider.
func InitMetrics(serviceName string) (*prom.Registry, *sdkmetric.MeterProvider, error) {
	res, err := newResource(serviceName)
	if err != nil {
		return nil, nil, err
	}

	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)
	return registry, provider, nil
}

// InitTracing creates a tracer provider writing spans to w and installs it
// as the global tracer provider.
func InitTracing(serviceName string, w io.Writer) (*sdktrace.TracerProvider, error) {
	res, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create console exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// MetricsEnabled reports whether a Prometheus registry is installed
func (t *Telemetry) MetricsEnabled() bool {
	return t != nil && t.registry != nil
}

// Handler serves the Prometheus registry. Without metrics it responds 404.
func (t *Telemetry) Handler() http.Handler {
	if !t.MetricsEnabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops every installed provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tracer != nil {
		if err := t.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if t.meters != nil {
		if err := t.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
