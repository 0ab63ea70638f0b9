package telemetry

import (
	"context"
	"testing"

	"github.com/smallbiznis/zeltra/internal/config"
	"github.com/smallbiznis/zeltra/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestNewTracerProviderWithoutExport(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	tp, err := NewTracerProvider(lc, config.Config{AppName: "zeltra", OTelEnabled: false}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.Equal(t, tp, otel.GetTracerProvider())

	lc.RequireStart()
	lc.RequireStop()
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter(context.Background(), "carrier-pigeon", "")
	assert.Error(t, err)
}

func TestCorrelationSpanProcessorTagsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&correlationSpanProcessor{}),
		sdktrace.WithSpanProcessor(recorder),
	)

	ctx := correlation.ContextWithCorrelationID(context.Background(), "01HZX")
	_, span := tp.Tracer("test").Start(ctx, "op")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Contains(t, ended[0].Attributes(), attribute.String("correlation_id", "01HZX"))
}
