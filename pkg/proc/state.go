package proc

import "syscall"

// StateKind describes where the target process is in its lifecycle.
type StateKind int

const (
	// NotStarted means no process has been launched or attached yet.
	NotStarted StateKind = iota
	// Running means the target is executing and only Kill or a signal can
	// get our attention before the next stop.
	Running
	// Stopped means the target is in a signal-delivery-stop and can be
	// inspected and mutated.
	Stopped
	// Exited means the target exited normally.
	Exited
	// Terminated means the target was killed by a signal.
	Terminated
)

func (k StateKind) String() string {
	switch k {
	case NotStarted:
		return "not started"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Exited:
		return "exited"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// State is a point-in-time view of the target process lifecycle.
// StopEvent is set while Stopped and records why the process stopped,
// ExitStatus is valid once Exited, Signal once Terminated.
type State struct {
	Kind       StateKind
	ExitStatus int
	Signal     syscall.Signal
	StopEvent  *StopEvent
}

// Resumable reports whether the process can receive trace-control requests
// that resume execution.
func (s State) Resumable() bool {
	return s.Kind == Stopped
}
