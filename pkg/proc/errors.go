package proc

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrNotStopped is returned when an operation that requires the target to be
// in a signal-delivery-stop is attempted while it is running.
var ErrNotStopped = errors.New("target process must be stopped")

// ProcessExitedError indicates that the process has exited and contains both
// process id and exit status.
type ProcessExitedError struct {
	Pid    int
	Status int
}

func (pe ProcessExitedError) Error() string {
	return fmt.Sprintf("process %d has exited with status %d", pe.Pid, pe.Status)
}

// ProcessTerminatedError indicates that the process was killed by a signal.
type ProcessTerminatedError struct {
	Pid    int
	Signal syscall.Signal
}

func (pt ProcessTerminatedError) Error() string {
	return fmt.Sprintf("process %d was terminated by signal %d", pt.Pid, pt.Signal)
}

// ProcessDetachedError indicates that we detached from the target process.
type ProcessDetachedError struct {
	Pid int
}

func (pd ProcessDetachedError) Error() string {
	return fmt.Sprintf("detached from process %d", pd.Pid)
}

// InvalidStateError is returned when a trace-control request is issued in a
// lifecycle state that does not permit it, for example a register write while
// the target is running.
type InvalidStateError struct {
	Op    string
	State StateKind
}

func (ise InvalidStateError) Error() string {
	return fmt.Sprintf("%s: invalid operation while process is %s", ise.Op, ise.State)
}

// LaunchFailureError means the target binary could not be started under
// trace control. It is fatal to that launch attempt only.
type LaunchFailureError struct {
	Path string
	Err  error
}

func (lfe LaunchFailureError) Error() string {
	return fmt.Sprintf("could not launch %s: %v", lfe.Path, lfe.Err)
}

func (lfe LaunchFailureError) Unwrap() error { return lfe.Err }

// AttachFailureError means attaching to a running process failed, usually
// because the pid does not exist or ptrace permission was denied.
type AttachFailureError struct {
	Pid int
	Err error
}

func (afe AttachFailureError) Error() string {
	return fmt.Sprintf("could not attach to pid %d: %v", afe.Pid, afe.Err)
}

func (afe AttachFailureError) Unwrap() error { return afe.Err }

// MemoryFaultError is returned when a read or write touched an address that
// is not accessible in the target's address space. Writes are rolled back
// before this is returned, so target memory is never left half written.
type MemoryFaultError struct {
	Addr uint64
	Err  error
}

func (mfe MemoryFaultError) Error() string {
	return fmt.Sprintf("memory fault at %#x: %v", mfe.Addr, mfe.Err)
}

func (mfe MemoryFaultError) Unwrap() error { return mfe.Err }

// BreakpointExistsError is returned when trying to set a breakpoint at an
// address that already has one.
type BreakpointExistsError struct {
	Addr uint64
}

func (bpe BreakpointExistsError) Error() string {
	return fmt.Sprintf("breakpoint already exists at %#x", bpe.Addr)
}

// NoBreakpointError is returned when trying to clear a breakpoint that does
// not exist.
type NoBreakpointError struct {
	Addr uint64
}

func (nbp NoBreakpointError) Error() string {
	return fmt.Sprintf("no breakpoint at %#x", nbp.Addr)
}

// UnknownRegisterError is returned by register access with a name the
// current architecture does not have.
type UnknownRegisterError struct {
	Name string
}

func (ure UnknownRegisterError) Error() string {
	return fmt.Sprintf("unknown register %s", ure.Name)
}
