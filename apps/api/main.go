package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/audit"
	"github.com/smallbiznis/quotaguard/internal/authorization"
	"github.com/smallbiznis/quotaguard/internal/billing"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/config"
	"github.com/smallbiznis/quotaguard/internal/customer"
	"github.com/smallbiznis/quotaguard/internal/events"
	"github.com/smallbiznis/quotaguard/internal/idempotency"
	"github.com/smallbiznis/quotaguard/internal/inventory"
	"github.com/smallbiznis/quotaguard/internal/observability"
	"github.com/smallbiznis/quotaguard/internal/order"
	"github.com/smallbiznis/quotaguard/internal/product"
	"github.com/smallbiznis/quotaguard/internal/providers/pdf"
	"github.com/smallbiznis/quotaguard/internal/quota"
	"github.com/smallbiznis/quotaguard/internal/ratelimit"
	"github.com/smallbiznis/quotaguard/internal/server"
	"github.com/smallbiznis/quotaguard/pkg/db"
	"go.uber.org/fx"
)

// API-only deployment. Migrations and the reset scheduler run elsewhere.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Core dependencies for API
		ratelimit.Module,
		idempotency.Module,
		events.Module,
		pdf.Module,
		audit.Module,
		authorization.Module,
		customer.Module,
		product.Module,
		inventory.Module,
		quota.Module,
		billing.Module,
		order.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
