package reminder

import (
	"estatecore/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("reminder.service",
	fx.Provide(
		NewRepository,
		NewService,
	),
)

var WorkerModule = fx.Module("reminder.worker",
	fx.Provide(
		NewDeliverer,
		NewScheduler,
	),
	fx.Invoke(
		registerHandlers,
		StartScheduler,
	),
)

func registerHandlers(mux *asynq.ServeMux, d *Deliverer) {
	mux.HandleFunc(taskname.ReminderDeliver, d.HandleDeliverTask)
}
