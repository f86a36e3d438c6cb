package viewer

// State is the lifecycle of a Controller.
type State int

const (
	StateStarting State = iota
	StateNativeAttempt
	StateNativeActive
	StateWebOnlyActive
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateNativeAttempt:
		return "native_attempt"
	case StateNativeActive:
		return "native_active"
	case StateWebOnlyActive:
		return "web_only_active"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Active reports whether the controller is serving observers.
func (s State) Active() bool {
	return s == StateNativeActive || s == StateWebOnlyActive
}

// ProbeResult is the outcome of checking for a native display surface.
type ProbeResult int

const (
	// ProbeAvailable means a native surface can be attempted.
	ProbeAvailable ProbeResult = iota
	// ProbeUnavailable means the environment has no surface, e.g. headless.
	ProbeUnavailable
	// ProbeFailed means the check itself errored.
	ProbeFailed
)

func (p ProbeResult) String() string {
	switch p {
	case ProbeAvailable:
		return "available"
	case ProbeUnavailable:
		return "unavailable"
	case ProbeFailed:
		return "failed"
	default:
		return "unknown"
	}
}
