// SPDX-License-Identifier: AGPL-3.0-or-later

package job

// State is a job's lifecycle state. Apart from UNCONFIGURED and RUNNABLE it
// is whatever the simulation wrote as the first token of its status file.
type State string

const (
	StateUnconfigured State = "UNCONFIGURED"
	StateRunnable     State = "RUNNABLE"
	StateRunning      State = "RUNNING"
	StatePaused       State = "PAUSED"
	StateComplete     State = "COMPLETE"
	StateError        State = "ERROR"
)

// transitions lists the moves the simulation and controller may produce.
// ERROR is reachable from every state that depends on the status file.
var transitions = map[State][]State{
	StateUnconfigured: {StateRunnable},
	StateRunnable:     {StateRunning, StateUnconfigured},
	StateRunning:      {StatePaused, StateComplete, StateError},
	StatePaused:       {StateRunning, StateRunnable, StateError},
	StateComplete:     {StatePaused, StateRunning, StateError},
	StateError:        {StateRunning, StatePaused, StateComplete, StateRunnable},
}

// Known reports whether s is one of the defined states.
func (s State) Known() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is an expected
// lifecycle step. Staying in the same state is always allowed.
func (s State) CanTransition(next State) bool {
	if s == next {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Runnable reports whether a run may be started.
func (s State) Runnable() bool {
	return s == StateRunnable || s == StatePaused
}

// Archivable reports whether editing the configuration must first record a
// run segment.
func (s State) Archivable() bool {
	return s == StatePaused || s == StateComplete
}

// Terminal reports whether the simulation has stopped for good.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// HasProgress reports whether the status file carries step counters worth
// turning into a percentage.
func (s State) HasProgress() bool {
	return s == StateRunning || s == StatePaused
}
