package model

import "fmt"

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateCanceled State = "canceled"
	StateFailed   State = "failed"
)

var allowedTransitions = map[State]map[State]bool{
	StateIdle: {
		StateRunning: true,
	},
	StateRunning: {
		StateFinished: true,
		StateCanceled: true,
		StateFailed:   true,
	},
	StateFinished: {
		StateIdle: true,
	},
	StateCanceled: {
		StateIdle: true,
	},
	StateFailed: {
		StateIdle: true,
	},
}

func IsKnownState(state State) bool {
	_, ok := allowedTransitions[state]
	return ok
}

func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func (s State) Terminal() bool {
	return s == StateFinished || s == StateCanceled || s == StateFailed
}

func Transition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid job state transition: %q -> %q", from, to)
	}
	return nil
}
