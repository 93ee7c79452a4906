package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/clock"
	"github.com/campuskit/billing/internal/config"
	"github.com/campuskit/billing/internal/migration"
	obsmetrics "github.com/campuskit/billing/internal/observability/metrics"
	"github.com/campuskit/billing/internal/scheduler"
	"github.com/campuskit/billing/internal/seed"
	"github.com/campuskit/billing/internal/server"
	"github.com/campuskit/billing/pkg/db"
	"github.com/campuskit/billing/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		obsmetrics.Module,

		migration.Module,
		seed.Module,
		server.Module,
		scheduler.Module,
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
