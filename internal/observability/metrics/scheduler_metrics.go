package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SchedulerResultSuccess = "success"
	SchedulerResultFailed  = "failed"
	SchedulerResultTimeout = "timeout"
)

// SchedulerMetrics captures the periodic aggregation loop. A nil value is a no-op.
type SchedulerMetrics struct {
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	owners      *prometheus.CounterVec
}

// NewScheduler registers the scheduler collectors on registerer.
func NewScheduler(registerer prometheus.Registerer) (*SchedulerMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Scheduler runs, by result.",
	}, []string{"result"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "run_duration_seconds",
		Help:      "Duration of one scheduler run.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	})
	owners := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "owners_processed_total",
		Help:      "Owners aggregated by the scheduler, by result.",
	}, []string{"result"})

	if err := register(registerer, &runs); err != nil {
		return nil, err
	}
	if err := register(registerer, &runDuration); err != nil {
		return nil, err
	}
	if err := register(registerer, &owners); err != nil {
		return nil, err
	}

	return &SchedulerMetrics{runs: runs, runDuration: runDuration, owners: owners}, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c *C) error {
	if err := registerer.Register(*c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return err
		}
		*c = existing
	}
	return nil
}

// ObserveRun records one completed scheduler run.
func (m *SchedulerMetrics) ObserveRun(result string, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(result)).Inc()
	m.runDuration.Observe(seconds)
}

// IncOwner records the outcome for one owner within a run.
func (m *SchedulerMetrics) IncOwner(result string) {
	if m == nil {
		return
	}
	m.owners.WithLabelValues(normalizeLabel(result)).Inc()
}
