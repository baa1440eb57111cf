package ecoauth

// State is the session state machine position.
//
//	Idle       --401-->            Refreshing
//	Refreshing --refresh ok-->     Idle
//	Refreshing --refresh failed--> LoggedOut
//	LoggedOut  --SaveTokens-->     Idle
type State int32

const (
	StateIdle State = iota
	StateRefreshing
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	if m == nil {
		return StateLoggedOut
	}
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev != s {
		m.logger.Debug("session state changed", "from", prev.String(), "to", s.String())
	}
}
