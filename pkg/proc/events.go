package proc

import (
	"fmt"
	"syscall"
)

// StopReason classifies why a resume or single-step returned.
type StopReason int

const (
	// StopUnknown is the zero value, never produced by a healthy backend.
	StopUnknown StopReason = iota
	// StopBreakpoint means execution hit an enabled software breakpoint.
	StopBreakpoint
	// StopStep means a requested single instruction step completed.
	StopStep
	// StopSignal means the process was stopped by a signal we did not
	// plant. The signal stays pending and is forwarded on the next resume
	// unless suppressed.
	StopSignal
	// StopExited means the process exited normally.
	StopExited
	// StopTerminated means the process was killed by a signal.
	StopTerminated
)

func (r StopReason) String() string {
	switch r {
	case StopBreakpoint:
		return "breakpoint hit"
	case StopStep:
		return "step completed"
	case StopSignal:
		return "signal delivered"
	case StopExited:
		return "exited"
	case StopTerminated:
		return "terminated"
	}
	return "unknown"
}

// StopEvent is the classified outcome of exactly one resume or single-step
// request. Addr is the corrected program counter for breakpoint, step and
// signal stops: for a breakpoint hit it is the breakpoint address itself,
// not the address the trap instruction advanced the counter to.
type StopEvent struct {
	Reason     StopReason
	Addr       uint64
	Signal     syscall.Signal
	ExitStatus int
	Breakpoint *Breakpoint
}

func (ev *StopEvent) String() string {
	switch ev.Reason {
	case StopBreakpoint:
		return fmt.Sprintf("breakpoint hit at %#x", ev.Addr)
	case StopStep:
		return fmt.Sprintf("step completed at %#x", ev.Addr)
	case StopSignal:
		return fmt.Sprintf("signal %s delivered at %#x", ev.Signal, ev.Addr)
	case StopExited:
		return fmt.Sprintf("process exited with status %d", ev.ExitStatus)
	case StopTerminated:
		return fmt.Sprintf("process terminated by signal %s", ev.Signal)
	}
	return "unknown stop"
}
