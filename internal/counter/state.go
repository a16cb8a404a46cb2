package counter

// State is the position of a visit in its read-modify-write cycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateComputing
	StateSaving
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateComputing:
		return "computing"
	case StateSaving:
		return "saving"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
