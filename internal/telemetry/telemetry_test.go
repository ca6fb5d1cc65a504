package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

func TestSetupAndShutdown(t *testing.T) {
	tel, err := Setup(zap.NewNop())
	require.NoError(t, err)

	// Instruments created through the global provider must be usable.
	meter := otel.Meter("test")
	counter, err := meter.Int64Counter("test.events", metric.WithUnit("{event}"))
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	assert.NoError(t, tel.Shutdown(context.Background()))
}
