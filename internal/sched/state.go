package sched

import "fmt"

// State is a lifecycle state of an Operation.
type State int

const (
	WaitingInQueue State = iota
	WaitingInQueueCanceling
	WaitingForCookie
	Started
	Canceling
	Finished
)

var stateNames = [...]string{
	WaitingInQueue:          "waiting_in_queue",
	WaitingInQueueCanceling: "waiting_in_queue_canceling",
	WaitingForCookie:        "waiting_for_cookie",
	Started:                 "started",
	Canceling:               "canceling",
	Finished:                "finished",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Active reports whether the state holds the sensor.
func (s State) Active() bool {
	return s == Started || s == Canceling
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown operation state %q", b)
}
