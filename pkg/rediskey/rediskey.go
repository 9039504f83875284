package rediskey

// Scheduler keys (global convention across services)
const (
	SchedulerLeaderLock   = "scheduler:leader_lock"
	SchedulerLastRun      = "scheduler:last_run"
	SchedulerLastCreated  = "scheduler:last_created"
	SchedulerLastRunError = "scheduler:last_run_error"
)
