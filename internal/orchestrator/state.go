package orchestrator

import "fmt"

// allowedTransitions declares every state change the picker may make.
var allowedTransitions = map[State]map[State]struct{}{
	StateIdle: {
		StateAwaitingDiscovery: {},
	},
	StateAwaitingDiscovery: {
		StateDispatching: {},
		StateDone:        {},
		StateIdle:        {}, // discovery failed before any operation
	},
	StateDispatching: {
		StateWaitingForPick: {},
		StateDone:           {},
	},
	StateWaitingForPick: {
		StateWaitingForRetrieval: {},
		StateDispatching:         {},
		StateDone:                {},
	},
	StateWaitingForRetrieval: {
		StateDispatching: {},
		StateDone:        {},
	},
	StateDone: {
		StateAwaitingDiscovery: {},
	},
}

// ValidateState returns an error for states outside the table.
func ValidateState(s State) error {
	if _, ok := allowedTransitions[s]; !ok {
		return fmt.Errorf("orchestrator: invalid state %q", s)
	}
	return nil
}

// ValidateTransition returns an error when from -> to is not allowed.
func ValidateTransition(from, to State) error {
	if err := ValidateState(from); err != nil {
		return err
	}
	if err := ValidateState(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("orchestrator: invalid transition %s -> %s", from, to)
	}
	return nil
}

// Transitions returns the allowed transitions in a stable order, for
// diagrams and tests.
func Transitions() [][2]State {
	var out [][2]State
	for _, from := range AllStates() {
		for _, to := range AllStates() {
			if _, ok := allowedTransitions[from][to]; ok {
				out = append(out, [2]State{from, to})
			}
		}
	}
	return out
}
