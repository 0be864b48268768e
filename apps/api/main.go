package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/consigna/internal/clock"
	"github.com/smallbiznis/consigna/internal/config"
	"github.com/smallbiznis/consigna/internal/lock"
	"github.com/smallbiznis/consigna/internal/observability"
	"github.com/smallbiznis/consigna/internal/sequence"
	"github.com/smallbiznis/consigna/internal/server"
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
		sequence.Module,

		// No reconcile worker: run apps/reconciler next to a fleet of API replicas.
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
