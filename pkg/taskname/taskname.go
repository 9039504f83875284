package taskname

const (
	// Reminder tasks
	ReminderDeliver = "reminder:deliver"
)

// QueueReminders holds one delayed delivery job per reminder.
const QueueReminders = "reminders"
