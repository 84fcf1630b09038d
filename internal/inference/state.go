package inference

// LoaderState is the model loader's lifecycle state.
type LoaderState int

const (
	StateUnloaded LoaderState = iota
	StateLoading
	StateReady
	StateFailed
)

func (s LoaderState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the coordinator, served by the API.
type Status struct {
	State        string `json:"state"`
	QueueDepth   int    `json:"queue_depth"`
	LoadAttempts int    `json:"load_attempts"`
	LastError    string `json:"last_error,omitempty"`
}
