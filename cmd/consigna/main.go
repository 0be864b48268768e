package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/consigna/internal/clock"
	"github.com/smallbiznis/consigna/internal/config"
	"github.com/smallbiznis/consigna/internal/lock"
	"github.com/smallbiznis/consigna/internal/migration"
	"github.com/smallbiznis/consigna/internal/observability"
	"github.com/smallbiznis/consigna/internal/reconcile"
	"github.com/smallbiznis/consigna/internal/sequence"
	"github.com/smallbiznis/consigna/internal/server"
	"github.com/smallbiznis/consigna/pkg/db"
	"go.uber.org/fx"
)

// Single binary: HTTP API plus the periodic balance reconciliation.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
		migration.Module,
		sequence.Module,

		server.Module,
		reconcile.Worker,
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
