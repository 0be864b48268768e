package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/consigna/internal/audit"
	"github.com/smallbiznis/consigna/internal/authorization"
	"github.com/smallbiznis/consigna/internal/balance"
	"github.com/smallbiznis/consigna/internal/clock"
	"github.com/smallbiznis/consigna/internal/config"
	"github.com/smallbiznis/consigna/internal/lock"
	"github.com/smallbiznis/consigna/internal/migration"
	"github.com/smallbiznis/consigna/internal/observability"
	"github.com/smallbiznis/consigna/internal/reconcile"
	"github.com/smallbiznis/consigna/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,
		migration.Module,

		audit.Module,
		authorization.Module,
		balance.Module,

		// No server module!
		reconcile.Module,
		reconcile.Worker,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
