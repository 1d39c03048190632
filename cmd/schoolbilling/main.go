package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/migration"
	"github.com/smallbiznis/schoolbilling/internal/observability"
	"github.com/smallbiznis/schoolbilling/internal/server"
	"github.com/smallbiznis/schoolbilling/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services and HTTP routes
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
