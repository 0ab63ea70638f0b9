package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/zeltra/internal/clock"
	"github.com/smallbiznis/zeltra/internal/config"
	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
	obsmetrics "github.com/smallbiznis/zeltra/internal/observability/metrics"
	"github.com/smallbiznis/zeltra/internal/observability/tracing"
	usagedomain "github.com/smallbiznis/zeltra/internal/usage/domain"
	"github.com/smallbiznis/zeltra/internal/usage/repository"
	"github.com/smallbiznis/zeltra/pkg/apperror"
	"github.com/smallbiznis/zeltra/pkg/db"
	"github.com/smallbiznis/zeltra/pkg/log/ctxlogger"
	"github.com/smallbiznis/zeltra/pkg/period"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const tracerName = "zeltra/usage"

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Identity identitydomain.Resolver
	Billing  *config.BillingConfigHolder
	Timeout  db.Timeout          `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	identity identitydomain.Resolver
	billing  *config.BillingConfigHolder
	timeout  db.Timeout
	metrics  *obsmetrics.Metrics
	validate *validator.Validate

	usagerepo usagedomain.Repository
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		log: p.Log.Named("usage.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		identity: p.Identity,
		billing:  p.Billing,
		timeout:  p.Timeout,
		metrics:  p.Metrics,
		validate: newValidator(),

		usagerepo: repository.Provide(p.DB),
	}
}

func (s *Service) RecordUsage(ctx context.Context, req usagedomain.RecordUsageRequest) (event *usagedomain.UsageEvent, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "usage.RecordUsage",
		attribute.String("service_type", req.ServiceType),
	)
	defer func() { s.finish(ctx, span, "record_usage", err) }()

	ownerID, err := s.identity.OwnerID(ctx)
	if err != nil {
		return nil, err
	}

	event, err = s.buildEvent(ownerID, req)
	if err != nil {
		return nil, err
	}

	qctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	if err := s.usagerepo.Insert(qctx, event); err != nil {
		return nil, apperror.Persistence(err)
	}

	s.metrics.RecordUsage(event.ServiceType, event.UsageType)
	ctxlogger.WithContext(ctx, s.log).Debug("usage recorded",
		zap.String("event_id", event.ID.String()),
		zap.String("service_type", event.ServiceType),
		zap.String("usage_type", event.UsageType),
		zap.String("billing_period", period.Key(event.BillingPeriod)),
	)
	return event, nil
}

func (s *Service) ListUsage(ctx context.Context, req usagedomain.ListUsageRequest) (items []usagedomain.UsageEvent, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "usage.ListUsage")
	defer func() { s.finish(ctx, span, "list_usage", err) }()

	ownerID, err := s.identity.OwnerID(ctx)
	if err != nil {
		return nil, err
	}

	billingPeriod := s.periodOrCurrent(req.BillingPeriod)

	qctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	items, err = s.usagerepo.ListByOwnerPeriod(qctx, ownerID, billingPeriod, req.ServiceType)
	if err != nil {
		return nil, apperror.Persistence(err)
	}
	return items, nil
}

func (s *Service) TrackInstanceUsage(ctx context.Context, instanceID, instanceType string) (*usagedomain.UsageEvent, error) {
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return nil, apperror.Validation(usagedomain.ErrInvalidInstance)
	}
	instanceType = strings.TrimSpace(instanceType)

	return s.RecordUsage(ctx, usagedomain.RecordUsageRequest{
		ServiceType: usagedomain.ServiceEC2,
		UsageType:   usagedomain.UsageComputeHours,
		Quantity:    decimal.NewFromInt(1),
		UnitCost:    s.billing.Get().InstanceHourlyRate(instanceType),
		ResourceID:  &instanceID,
		Metadata:    map[string]any{"instance_type": instanceType},
	})
}

func (s *Service) TrackStorageUsage(ctx context.Context, req usagedomain.TrackStorageRequest) (events []usagedomain.UsageEvent, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "usage.TrackStorageUsage")
	defer func() { s.finish(ctx, span, "track_storage_usage", err) }()

	bucket := strings.TrimSpace(req.Bucket)
	if bucket == "" {
		return nil, apperror.Validation(usagedomain.ErrInvalidBucket)
	}
	if req.TransferGB.IsNegative() {
		return nil, apperror.Validation(usagedomain.ErrInvalidQuantity)
	}

	ownerID, err := s.identity.OwnerID(ctx)
	if err != nil {
		return nil, err
	}

	rates := s.billing.Get()
	requests := []usagedomain.RecordUsageRequest{{
		ServiceType: usagedomain.ServiceS3,
		UsageType:   usagedomain.UsageStorageGBHours,
		Quantity:    req.StorageGB,
		UnitCost:    rates.StorageGBHourRate(),
		ResourceID:  &bucket,
	}}
	if req.TransferGB.IsPositive() {
		requests = append(requests, usagedomain.RecordUsageRequest{
			ServiceType: usagedomain.ServiceS3,
			UsageType:   usagedomain.UsageDataTransferGB,
			Quantity:    req.TransferGB,
			UnitCost:    rates.TransferGBRate(),
			ResourceID:  &bucket,
		})
	}

	batch := make([]*usagedomain.UsageEvent, 0, len(requests))
	for _, r := range requests {
		event, err := s.buildEvent(ownerID, r)
		if err != nil {
			return nil, err
		}
		batch = append(batch, event)
	}

	qctx, cancel := s.timeout.WithTimeout(ctx)
	defer cancel()

	if err := s.usagerepo.InsertBatch(qctx, batch); err != nil {
		return nil, apperror.Persistence(err)
	}

	events = make([]usagedomain.UsageEvent, 0, len(batch))
	for _, event := range batch {
		s.metrics.RecordUsage(event.ServiceType, event.UsageType)
		events = append(events, *event)
	}
	return events, nil
}

// LineItems groups the current owner's usage for billingPeriod by service,
// usage type and unit cost.
func (s *Service) LineItems(ctx context.Context, billingPeriod time.Time) ([]usagedomain.LineItem, error) {
	events, err := s.ListUsage(ctx, usagedomain.ListUsageRequest{BillingPeriod: &billingPeriod})
	if err != nil {
		return nil, err
	}
	return GroupLineItems(events), nil
}

// GroupLineItems folds events into line items ordered by service and usage type.
func GroupLineItems(events []usagedomain.UsageEvent) []usagedomain.LineItem {
	type key struct {
		service   string
		usageType string
		unitCost  string
	}
	index := make(map[key]int)
	items := make([]usagedomain.LineItem, 0)
	for _, event := range events {
		k := key{event.ServiceType, event.UsageType, event.UnitCost.String()}
		i, ok := index[k]
		if !ok {
			index[k] = len(items)
			items = append(items, usagedomain.LineItem{
				ServiceType: event.ServiceType,
				UsageType:   event.UsageType,
				UnitCost:    event.UnitCost,
			})
			i = len(items) - 1
		}
		items[i].Quantity = items[i].Quantity.Add(event.Quantity)
		items[i].Amount = items[i].Amount.Add(event.Cost())
	}

	sort.SliceStable(items, func(a, b int) bool {
		if items[a].ServiceType != items[b].ServiceType {
			return items[a].ServiceType < items[b].ServiceType
		}
		if items[a].UsageType != items[b].UsageType {
			return items[a].UsageType < items[b].UsageType
		}
		return items[a].UnitCost.LessThan(items[b].UnitCost)
	})
	return items
}

func (s *Service) buildEvent(ownerID string, req usagedomain.RecordUsageRequest) (*usagedomain.UsageEvent, error) {
	req = normalizeRecordRequest(req)
	if err := s.validateRecordRequest(req); err != nil {
		return nil, err
	}

	event := &usagedomain.UsageEvent{
		ID:            s.genID.Generate(),
		OwnerID:       ownerID,
		ServiceType:   req.ServiceType,
		ResourceID:    req.ResourceID,
		UsageType:     req.UsageType,
		Quantity:      req.Quantity,
		UnitCost:      req.UnitCost,
		BillingPeriod: s.periodOrCurrent(req.BillingPeriod),
		RecordedAt:    s.clock.Now(),
	}
	if req.Metadata != nil {
		event.Metadata = datatypes.JSONMap(req.Metadata)
	}
	return event, nil
}

func (s *Service) periodOrCurrent(value *time.Time) time.Time {
	if value != nil && !value.IsZero() {
		return period.Of(*value)
	}
	return period.Of(s.clock.Now())
}

func (s *Service) finish(ctx context.Context, span tracing.Span, operation string, err error) {
	tracing.EndSpan(span, err)
	if err == nil {
		return
	}
	s.metrics.RecordError(operation, apperror.KindOf(err))
	ctxlogger.WithContext(ctx, s.log).Warn("usage operation failed",
		zap.String("operation", operation),
		zap.String("kind", string(apperror.KindOf(err))),
		zap.Error(err),
	)
}
