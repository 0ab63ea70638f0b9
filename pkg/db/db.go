package db

import (
	"context"
	"time"

	"github.com/smallbiznis/zeltra/internal/config"
	obslogger "github.com/smallbiznis/zeltra/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

// DefaultQueryTimeout bounds a persistence round-trip when no timeout is configured.
const DefaultQueryTimeout = 5 * time.Second

// Timeout bounds every persistence round-trip issued by the billing core.
type Timeout time.Duration

// WithTimeout derives a bounded context for one persistence round-trip.
func (t Timeout) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := time.Duration(t)
	if d <= 0 {
		d = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, d)
}

// Open connects to the configured database and applies pool settings.
func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         obslogger.NewGormLogger(obslogger.GormLoggerConfigFor(cfg.LogLevel)),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if cfg.OTelEnabled {
		if err := conn.Use(otelgorm.NewPlugin()); err != nil {
			return nil, err
		}
	}
	if cfg.DBMetricsEnabled {
		// Pool stats land on the default registry served at /metrics.
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          cfg.DBName,
			RefreshInterval: 15,
			StartServer:     false,
		})); err != nil {
			return nil, err
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Second)

	log.Info("database connected",
		zap.String("type", cfg.DBType),
		zap.String("host", cfg.DBHost),
		zap.String("name", cfg.DBName),
	)
	return conn, nil
}

func provideTimeout(cfg config.Config) Timeout {
	return Timeout(cfg.DBQueryTimeout)
}

func registerHooks(lc fx.Lifecycle, conn *gorm.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
}

var Module = fx.Module("db",
	fx.Provide(Open),
	fx.Provide(provideTimeout),
	fx.Invoke(registerHooks),
)
