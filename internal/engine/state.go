// Package engine drives the observing night: a single control loop that
// moves the unit through a fixed set of operational states, gated by the
// safety monitor and fed targets by the scheduler. Any fault inside a state
// resolves to a transition toward parking; the loop itself never dies on a
// collaborator error.
package engine

import "fmt"

// State identifies one operational state of the unit.
type State string

const (
	StateSleeping     State = "sleeping"
	StateReady        State = "ready"
	StateScheduling   State = "scheduling"
	StateSlewing      State = "slewing"
	StateObserving    State = "observing"
	StateAnalyzing    State = "analyzing"
	StateParking      State = "parking"
	StateParked       State = "parked"
	StateHousekeeping State = "housekeeping"
)

// AllStates lists every defined state. The set is closed: handlers are
// registered for exactly these at startup and override tables may not add
// to it.
var AllStates = []State{
	StateSleeping,
	StateReady,
	StateScheduling,
	StateSlewing,
	StateObserving,
	StateAnalyzing,
	StateParking,
	StateParked,
	StateHousekeeping,
}

// ParseState maps a name to a State, failing on anything outside the
// closed set.
func ParseState(name string) (State, error) {
	for _, s := range AllStates {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("engine: unknown state %q", name)
}

func (s State) String() string { return string(s) }
