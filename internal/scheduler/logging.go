package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/zeltra/pkg/log/ctxlogger"
	"github.com/smallbiznis/zeltra/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

type jobRun struct {
	runID     string
	period    string
	startedAt time.Time
	owners    int
	generated int
	skipped   int
	failed    int
}

func (s *Scheduler) startRun(ctx context.Context, period string) (context.Context, *jobRun) {
	ctx, runID := correlation.EnsureCorrelationID(ctx)
	run := &jobRun{
		runID:     runID,
		period:    period,
		startedAt: time.Now(),
	}
	s.logger(ctx).Info("scheduler.run.start",
		zap.String("run_id", run.runID),
		zap.String("billing_period", period),
	)
	return ctx, run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return ctxlogger.WithContext(ctx, s.log)
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun, err error) {
	fields := []zap.Field{
		zap.String("run_id", run.runID),
		zap.String("billing_period", run.period),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("owner_count", run.owners),
		zap.Int("generated_count", run.generated),
		zap.Int("skipped_count", run.skipped),
		zap.Int("error_count", run.failed),
	}
	log := s.logger(ctx)
	if err != nil {
		log.Warn("scheduler.run.finish", append(fields, zap.Error(err))...)
		return
	}
	if run.failed > 0 {
		log.Warn("scheduler.run.finish", fields...)
		return
	}
	log.Info("scheduler.run.finish", fields...)
}
