package session

// State is the lifecycle phase of a practice session.
type State int

const (
	StateSetup State = iota
	StateActive
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateActive:
		return "active"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}
