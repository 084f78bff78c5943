package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/audit"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/config"
	"github.com/smallbiznis/quotaguard/internal/observability"
	"github.com/smallbiznis/quotaguard/internal/pushmetrics"
	"github.com/smallbiznis/quotaguard/internal/quota"
	"github.com/smallbiznis/quotaguard/internal/scheduler"
	"github.com/smallbiznis/quotaguard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		audit.Module,
		quota.Module,
		pushmetrics.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
