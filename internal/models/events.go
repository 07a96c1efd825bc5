package models

// TimerAction names a lifecycle transition for event publication.
type TimerAction string

const (
	// TimerActionStarted fires when a timer is created and armed.
	TimerActionStarted TimerAction = "started"
	// TimerActionCancelled fires when a timer is removed by a caller.
	TimerActionCancelled TimerAction = "cancelled"
	// TimerActionWarning fires at expires - pre_expire_warning.
	TimerActionWarning TimerAction = "warning"
	// TimerActionExpired fires at expires.
	TimerActionExpired TimerAction = "expired"
	// TimerActionSnoozed fires when an expired timer is re-armed.
	TimerActionSnoozed TimerAction = "snoozed"
)

const (
	eventPrefix        = "va_timer_"
	eventCommandPrefix = "va_timer_command_"
)

// EventName builds the platform event bus name for a transition. Command
// timers use their own prefix so automations can match them separately.
func EventName(class TimerClass, action TimerAction) string {
	if class == TimerClassCommand {
		return eventCommandPrefix + string(action)
	}
	return eventPrefix + string(action)
}
