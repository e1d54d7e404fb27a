package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/turioshq/gateway/internal/migration"
	"github.com/turioshq/gateway/internal/observability"
	"github.com/turioshq/gateway/internal/server"
	"github.com/turioshq/gateway/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
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
