package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	billingdomain "github.com/smallbiznis/zeltra/internal/billing/domain"
	"github.com/smallbiznis/zeltra/internal/clock"
	obsmetrics "github.com/smallbiznis/zeltra/internal/observability/metrics"
	"github.com/smallbiznis/zeltra/internal/ownercontext"
	"github.com/smallbiznis/zeltra/pkg/period"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Billing billingdomain.Service
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
	Config  Config                       `optional:"true"`
}

// Scheduler regenerates the current period's summary for every owner with usage.
type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	billing billingdomain.Service
	metrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Billing == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		billing: p.Billing,
		metrics: p.Metrics,
	}, nil
}

// RunOnce aggregates the current period for each billable owner. Owner
// failures are counted and logged; the run continues with the next owner.
func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.RunTimeout)
	defer cancel()

	p := period.Of(s.clock.Now())
	ctx, run := s.startRun(ctx, period.Key(p))

	err := s.aggregate(ctx, p, run)
	s.finishRun(ctx, run, err)

	result := obsmetrics.SchedulerResultSuccess
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result = obsmetrics.SchedulerResultTimeout
	case err != nil || run.failed > 0:
		result = obsmetrics.SchedulerResultFailed
	}
	s.metrics.ObserveRun(result, time.Since(run.startedAt).Seconds())
	return err
}

func (s *Scheduler) aggregate(ctx context.Context, p time.Time, run *jobRun) error {
	owners, err := s.billing.ListBillableOwners(ctx, p)
	if err != nil {
		return fmt.Errorf("list billable owners: %w", err)
	}
	run.owners = len(owners)

	for _, ownerID := range owners {
		if err := ctx.Err(); err != nil {
			return err
		}

		ownerCtx := ownercontext.WithOwnerID(ctx, ownerID)
		_, err := s.billing.GenerateBilling(ownerCtx, p)
		switch {
		case err == nil:
			run.generated++
			s.metrics.IncOwner("generated")
		case errors.Is(err, billingdomain.ErrSummaryClosed):
			run.skipped++
			s.metrics.IncOwner("skipped")
		default:
			run.failed++
			s.metrics.IncOwner(obsmetrics.SchedulerResultFailed)
			s.logger(ownerCtx).Error("scheduler.owner.failed",
				zap.String("run_id", run.runID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
