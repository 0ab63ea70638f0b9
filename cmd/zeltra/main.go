package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/zeltra/internal/billing"
	"github.com/smallbiznis/zeltra/internal/clock"
	"github.com/smallbiznis/zeltra/internal/config"
	"github.com/smallbiznis/zeltra/internal/identity"
	"github.com/smallbiznis/zeltra/internal/invoice"
	"github.com/smallbiznis/zeltra/internal/lock"
	"github.com/smallbiznis/zeltra/internal/logger"
	"github.com/smallbiznis/zeltra/internal/migration"
	"github.com/smallbiznis/zeltra/internal/observability"
	"github.com/smallbiznis/zeltra/internal/providers"
	"github.com/smallbiznis/zeltra/internal/ratelimit"
	"github.com/smallbiznis/zeltra/internal/scheduler"
	"github.com/smallbiznis/zeltra/internal/server"
	"github.com/smallbiznis/zeltra/internal/usage"
	"github.com/smallbiznis/zeltra/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,
		ratelimit.Module,

		// Billing core
		identity.Module,
		usage.Module,
		billing.Module,
		invoice.Module,
		providers.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
