package collector

// State is the scheduler's current activity.
type State int

// Scheduler states.
const (
	StateIdle State = iota
	StateLoadingConfig
	StatePolling
	StateReconciling
	StatePruning
	StateSleeping
	StateStopped
)

// String returns the state name used in logs and the API.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingConfig:
		return "loading-config"
	case StatePolling:
		return "polling-cycle"
	case StateReconciling:
		return "reconciling-config"
	case StatePruning:
		return "pruning"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
