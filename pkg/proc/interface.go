package proc

import "syscall"

// LaunchFlags adjusts how a target process is launched.
type LaunchFlags uint8

const (
	// LaunchUsePTY runs the target under a fresh pseudo-terminal and
	// captures its merged stdout/stderr.
	LaunchUsePTY LaunchFlags = 1 << iota
	// LaunchDisableASLR turns off address space randomization for the
	// target, making raw addresses stable across runs.
	LaunchDisableASLR
)

// Process represents the traced, "inferior" process. Implementations own
// the OS process handle and serialize all trace control onto a single
// thread; callers must treat a Process as not safe for concurrent use.
//
// Resume and StepInstruction are the only blocking operations: they return
// once the target produced its next stop, exit or termination, already
// classified as a StopEvent.
type Process interface {
	MemoryReadWriter
	BreakpointManipulation
	RegisterAccess

	Pid() int
	State() State

	// Resume performs the step-over protocol if the target stands on an
	// enabled breakpoint, continues execution and blocks until the next
	// event.
	Resume() (*StopEvent, error)
	// StepInstruction executes exactly one machine instruction.
	StepInstruction() (*StopEvent, error)
	// Kill terminates and reaps the target unconditionally.
	Kill() error
	// Detach releases trace control, restoring all breakpoints first.
	Detach() error
	// SuppressSignal configures whether sig is swallowed instead of
	// re-delivered when it stops the target.
	SuppressSignal(sig syscall.Signal, suppress bool)
}

// BreakpointManipulation is the subset of Process dealing with the
// breakpoint table. All calls require the Stopped state.
type BreakpointManipulation interface {
	SetBreakpoint(addr uint64) (*Breakpoint, error)
	ClearBreakpoint(addr uint64) (*Breakpoint, error)
	EnableBreakpoint(addr uint64) error
	DisableBreakpoint(addr uint64) error
	Breakpoints() *BreakpointMap
}

// RegisterAccess is the subset of Process dealing with the register file.
// Reads are served from the snapshot taken at the last stop; writes go
// through to the live thread and refresh the snapshot.
type RegisterAccess interface {
	Registers() (Registers, error)
	SetRegister(name string, value uint64) error
	PC() (uint64, error)
	SetPC(pc uint64) error
	Arch() *Arch
}
