package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"estatecore/pkg/config"
	"estatecore/pkg/db"
	"estatecore/pkg/gen"
	"estatecore/pkg/lock"
	"estatecore/pkg/logger"
	"estatecore/pkg/mailer"
	"estatecore/pkg/redis"
	"estatecore/pkg/task"
	"estatecore/services/contract"
	"estatecore/services/reminder"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		task.Client,
		task.Server,
		lock.Module,
		mailer.Module,
		contract.Module,
		reminder.Module,
		reminder.WorkerModule,
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
