package store

// Per-worker session states. A worker with no open record is in StateNone;
// clocking in opens a session, clocking out closes it again.
const (
	StateNone = "no_open_session"
	StateOpen = "open"

	ActionClockIn  = "clock_in"
	ActionClockOut = "clock_out"
)

var transitionMap = map[string][]string{
	ActionClockIn:  {StateNone},
	ActionClockOut: {StateOpen},
}

func ValidTransition(action, fromState string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state == fromState {
			return true
		}
	}
	return false
}
