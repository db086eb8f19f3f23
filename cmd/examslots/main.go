package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/chapterhq/examslots/internal/balance"
	"github.com/chapterhq/examslots/internal/catalog"
	"github.com/chapterhq/examslots/internal/clock"
	"github.com/chapterhq/examslots/internal/config"
	"github.com/chapterhq/examslots/internal/coordinator"
	"github.com/chapterhq/examslots/internal/gateway"
	"github.com/chapterhq/examslots/internal/logger"
	"github.com/chapterhq/examslots/internal/migration"
	"github.com/chapterhq/examslots/internal/observability"
	"github.com/chapterhq/examslots/internal/purchase"
	"github.com/chapterhq/examslots/internal/reconcile"
	"github.com/chapterhq/examslots/internal/scheduler"
	"github.com/chapterhq/examslots/internal/server"
	"github.com/chapterhq/examslots/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		observability.Module,
		migration.Module,

		// Functional domains
		catalog.Module,
		coordinator.Module,
		gateway.Module,
		purchase.Module,
		balance.Module,
		reconcile.Module,
		scheduler.Module,

		// HTTP surface
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
