package coordinator

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/fixd/internal/coordinator"

var (
	executionCounter  metric.Int64Counter
	executionDuration metric.Float64Histogram
	stepErrorCounter  metric.Int64Counter
)

// initMetrics initializes OpenTelemetry metrics for workflow executions.
// This is called once during package initialization.
func initMetrics() {
	meter := otel.Meter(instrumentationName)

	var err error

	executionCounter, err = meter.Int64Counter(
		"fixd.workflows.executions",
		metric.WithDescription("Total number of workflow executions by template and terminal status"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create execution counter: %v", err))
	}

	executionDuration, err = meter.Float64Histogram(
		"fixd.workflows.duration",
		metric.WithDescription("Duration of workflow executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create execution duration histogram: %v", err))
	}

	stepErrorCounter, err = meter.Int64Counter(
		"fixd.workflows.step_errors",
		metric.WithDescription("Number of step execution errors by step and error class"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create step error counter: %v", err))
	}
}

func init() {
	initMetrics()
}
