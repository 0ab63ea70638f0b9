package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/zeltra/internal/observability/metrics"
	"github.com/smallbiznis/zeltra/pkg/telemetry"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideRegisterer,
		provideGatherer,
		metrics.New,
		metrics.NewScheduler,
	),
	telemetry.Module,
	fx.Invoke(ensureTracingProvider),
)

func ensureTracingProvider(_ *sdktrace.TracerProvider) {}

func provideRegisterer() prometheus.Registerer { return prometheus.DefaultRegisterer }

func provideGatherer() prometheus.Gatherer { return prometheus.DefaultGatherer }
