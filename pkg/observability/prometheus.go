package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Sumatoshi-tech/indexedrb/pkg/version"
)

// Prometheus couples an OTel MeterProvider with the Prometheus registry it
// exports to.
type Prometheus struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

// NewPrometheus creates a MeterProvider backed by the OTel Prometheus exporter.
// Each call creates an independent Prometheus registry to avoid collector
// conflicts when called multiple times.
func NewPrometheus() (*Prometheus, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &Prometheus{
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Meter returns the meter for tree instruments.
func (p *Prometheus) Meter() metric.Meter {
	return p.provider.Meter(meterName, metric.WithInstrumentationVersion(version.String()))
}

// Handler serves the /metrics scrape endpoint.
func (p *Prometheus) Handler() http.Handler {
	return p.handler
}

// Shutdown releases the MeterProvider.
func (p *Prometheus) Shutdown(ctx context.Context) error {
	err := p.provider.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}

	return nil
}
