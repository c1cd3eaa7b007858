package core

// SchedulerStatus is the lifecycle state of a destination's scheduler.
// Exactly one status holds at any instant per destination.
type SchedulerStatus string

const (
	StatusStopped SchedulerStatus = "stopped"
	StatusRunning SchedulerStatus = "running"
	StatusPaused  SchedulerStatus = "paused"
)

func (s SchedulerStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusStopped:
		return "stopped"
	default:
		return "stopped"
	}
}

// IsActive reports whether a worker loop exists for this status.
func (s SchedulerStatus) IsActive() bool {
	return s == StatusRunning || s == StatusPaused
}
