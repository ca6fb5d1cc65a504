// Package telemetry wires OpenTelemetry metrics to the Prometheus
// scrape endpoint served by the HTTP API.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// Telemetry owns the meter provider lifecycle.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	logger   *zap.Logger
}

// Setup installs a Prometheus-backed meter provider as the global OTEL
// provider. Instruments bind to the provider at record time, so package
// init-time instruments still reach the exporter.
func Setup(logger *zap.Logger) (*Telemetry, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	logger.Debug("telemetry initialized")
	return &Telemetry{provider: provider, logger: logger}, nil
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}
	t.logger.Debug("telemetry stopped")
	return nil
}
