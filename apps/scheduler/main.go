package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/zeltra/internal/billing"
	"github.com/smallbiznis/zeltra/internal/clock"
	"github.com/smallbiznis/zeltra/internal/config"
	"github.com/smallbiznis/zeltra/internal/identity"
	"github.com/smallbiznis/zeltra/internal/lock"
	"github.com/smallbiznis/zeltra/internal/logger"
	"github.com/smallbiznis/zeltra/internal/observability"
	"github.com/smallbiznis/zeltra/internal/scheduler"
	"github.com/smallbiznis/zeltra/internal/usage"
	"github.com/smallbiznis/zeltra/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// Domain services required by scheduler
		identity.Module,
		usage.Module,
		billing.Module,

		// No server module
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
