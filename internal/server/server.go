package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingdomain "github.com/smallbiznis/zeltra/internal/billing/domain"
	"github.com/smallbiznis/zeltra/internal/config"
	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
	invoicedomain "github.com/smallbiznis/zeltra/internal/invoice/domain"
	obslogger "github.com/smallbiznis/zeltra/internal/observability/logger"
	obstracing "github.com/smallbiznis/zeltra/internal/observability/tracing"
	"github.com/smallbiznis/zeltra/internal/ratelimit"
	usagedomain "github.com/smallbiznis/zeltra/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	Cfg      config.Config
	Log      *zap.Logger
	Gatherer prometheus.Gatherer `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if p.Cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.CorrelationMiddleware())
	r.Use(obstracing.GinMiddleware())
	r.Use(obslogger.GinMiddleware(p.Log.Named("http"), obslogger.MiddlewareConfig{
		Debug:           !p.Cfg.IsProduction() && p.Cfg.LogLevel == "debug",
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	log          *zap.Logger
	identitySvc  identitydomain.Service
	usagesvc     usagedomain.Service
	billingSvc   billingdomain.Service
	invoiceSvc   invoicedomain.Service
	usageLimiter *ratelimit.UsageLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Log          *zap.Logger
	IdentitySvc  identitydomain.Service
	Usagesvc     usagedomain.Service
	BillingSvc   billingdomain.Service
	InvoiceSvc   invoicedomain.Service
	UsageLimiter *ratelimit.UsageLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		log:          p.Log.Named("http.server"),
		identitySvc:  p.IdentitySvc,
		usagesvc:     p.Usagesvc,
		billingSvc:   p.BillingSvc,
		invoiceSvc:   p.InvoiceSvc,
		usageLimiter: p.UsageLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1", s.OwnerContext())

	// -------- Profile --------
	api.GET("/profile", s.GetProfile)
	api.PUT("/profile", s.UpsertProfile)

	// -------- Usage --------
	api.GET("/usage", s.ListUsage)
	api.POST("/usage", s.UsageRecordRateLimit(), s.RecordUsage)
	api.POST("/usage/instances", s.UsageRecordRateLimit(), s.TrackInstanceUsage)
	api.POST("/usage/storage", s.UsageRecordRateLimit(), s.TrackStorageUsage)

	// -------- Billing --------
	api.GET("/billing", s.ListSummaries)
	api.GET("/billing/:period", s.GetSummary)
	api.POST("/billing/:period/generate", s.GenerateBilling)
	api.POST("/billing/:period/status", s.TransitionSummary)
	api.GET("/billing/:period/breakdown", s.GetCostBreakdown)
	api.GET("/billing/:period/budget", s.GetBudgetStatus)

	// -------- Invoices --------
	api.GET("/invoices/:period", s.GetInvoice)
	api.GET("/invoices/:period/pdf", s.GetInvoicePDF)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
