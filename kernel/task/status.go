package task

import "ospreyos/kernel"

var errBadTransition = &kernel.Error{Module: "task", Message: "invalid task status transition"}

// Status describes the execution state of a task. At most one task is
// Running at any instant on this single-core kernel.
type Status uint8

const (
	// StatusUninitialized is the state of a control block whose address
	// space has not been constructed yet.
	StatusUninitialized Status = iota

	// StatusReady marks a task that can be scheduled.
	StatusReady

	// StatusRunning marks the task currently owning the core.
	StatusRunning

	// StatusExited is terminal; an exited task is never resumed.
	StatusExited
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// canBecome reports whether the transition from s to next is part of the
// task lifecycle: construction readies a task, scheduling runs it, a yield
// suspends it and exit is terminal.
func (s Status) canBecome(next Status) bool {
	switch s {
	case StatusUninitialized:
		return next == StatusReady
	case StatusReady:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusReady || next == StatusExited
	default:
		return false
	}
}
