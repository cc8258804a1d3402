// Package lifecycle provides start/stop management for the long-running
// background services of the auth core, such as the permissions
// invalidation scheduler.
//
// A [BaseService] walks a small state machine:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may move to Failed when a hook errors. Both
// terminal states (Stopped, Failed) may move back to Starting so a service
// can be restarted.
//
// Lifecycle operations create OpenTelemetry spans under the
// "github.com/StricklySoft/stricklysoft-authcore/pkg/lifecycle" scope.
package lifecycle

import "slices"

// State is the lifecycle state of a service.
type State string

const (
	// StateUnknown is the state of a service that has never been started.
	StateUnknown State = "unknown"

	// StateStarting is set before the OnStart hook runs.
	StateStarting State = "starting"

	// StateRunning is the only state in which [BaseService.Health] reports
	// healthy.
	StateRunning State = "running"

	// StateStopping is set before the OnStop hook runs.
	StateStopping State = "stopping"

	// StateStopped is reached after a clean shutdown.
	StateStopped State = "stopped"

	// StateFailed is reached when a lifecycle hook returns an error.
	StateFailed State = "failed"
)

// String returns the string form of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a recognized state. The zero value is not.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// validTransitions:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Stopping, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//	Stopped  → Starting
//	Failed   → Starting
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateFailed:   {StateStarting},
}

// ValidTransition reports whether moving from one state to another is
// allowed. Same-state transitions are always rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	return slices.Contains(validTransitions[from], to)
}
