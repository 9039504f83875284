package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchedulerEnabledDefaultsOff(t *testing.T) {
	// neither flag set: scheduling stays off so ad-hoc instances
	// (migrations, one-off scripts) never fire reminders
	require.False(t, SchedulerEnabled())
}

func TestSchedulerEnabledDisableFlag(t *testing.T) {
	t.Setenv("DISABLE_SCHEDULER", "false")
	require.True(t, SchedulerEnabled())

	t.Setenv("DISABLE_SCHEDULER", "0")
	require.True(t, SchedulerEnabled())

	t.Setenv("DISABLE_SCHEDULER", "true")
	require.False(t, SchedulerEnabled())

	t.Setenv("DISABLE_SCHEDULER", "1")
	require.False(t, SchedulerEnabled())
}

func TestSchedulerEnabledOverride(t *testing.T) {
	// the explicit enable flag wins over the disable flag
	t.Setenv("DISABLE_SCHEDULER", "true")
	t.Setenv("ENABLE_SCHEDULER", "true")
	require.True(t, SchedulerEnabled())

	t.Setenv("ENABLE_SCHEDULER", "false")
	require.False(t, SchedulerEnabled())
}
