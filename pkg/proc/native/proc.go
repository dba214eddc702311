//go:build linux

// Package native implements trace control of a target process ("the
// inferior") on top of the ptrace interface.
package native

import (
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	sys "golang.org/x/sys/unix"

	"github.com/debugworks/godbg/pkg/logflags"
	"github.com/debugworks/godbg/pkg/proc"
)

// nativeProcess represents all of the information the debugger is holding
// onto regarding the process we are debugging.
type nativeProcess struct {
	pid  int
	cmd  *exec.Cmd
	arch *proc.Arch

	breakpoints proc.BreakpointMap

	// regs is the register snapshot taken at the last stop. It is nil
	// while the process runs and refreshed on every transition to Stopped.
	regs proc.Registers

	state      proc.StateKind
	lastEvent  *proc.StopEvent
	exitStatus int
	termSignal syscall.Signal

	// pendingSignal is a stop signal observed but not yet delivered to the
	// target. It is forwarded with the next resume unless suppressed.
	pendingSignal   syscall.Signal
	suppressSignals map[syscall.Signal]bool

	memFile      *os.File // /proc/<pid>/mem, may be nil
	ptmx         *os.File // pty master when launched with a pty
	childProcess bool     // this process was launched, not attached to
	detached     bool

	ptraceChan     chan func()
	ptraceDoneChan chan interface{}
}

// procLog fetches the proc layer logger at call time, so logging enabled
// by a later logflags.Setup is picked up.
func procLog() *logrus.Entry {
	return logflags.ProcLogger()
}

// newProcess returns an initialized nativeProcess struct. Before returning,
// it will also start the goroutine that services ptrace requests: the
// kernel only accepts ptrace calls from the thread that issued
// PTRACE_TRACEME/ATTACH, so every request is funneled onto one locked OS
// thread for the lifetime of the trace.
func newProcess(pid int) *nativeProcess {
	dbp := &nativeProcess{
		pid:             pid,
		state:           proc.NotStarted,
		suppressSignals: make(map[syscall.Signal]bool),
		ptraceChan:      make(chan func()),
		ptraceDoneChan:  make(chan interface{}),
	}
	go dbp.handlePtraceFuncs()
	return dbp
}

func (dbp *nativeProcess) handlePtraceFuncs() {
	// We must ensure here that we are running on the same thread during
	// the execution of dbg. This is due to the fact that ptrace(2) expects
	// all commands after PTRACE_ATTACH to come from the same thread.
	runtime.LockOSThread()

	for fn := range dbp.ptraceChan {
		fn()
		dbp.ptraceDoneChan <- nil
	}
}

func (dbp *nativeProcess) execPtraceFunc(fn func()) {
	dbp.ptraceChan <- fn
	<-dbp.ptraceDoneChan
}

// Pid returns the process ID.
func (dbp *nativeProcess) Pid() int {
	return dbp.pid
}

// Arch returns the architecture of the traced process.
func (dbp *nativeProcess) Arch() *proc.Arch {
	return dbp.arch
}

// State returns a point-in-time view of the target lifecycle.
func (dbp *nativeProcess) State() proc.State {
	return proc.State{
		Kind:       dbp.state,
		ExitStatus: dbp.exitStatus,
		Signal:     dbp.termSignal,
		StopEvent:  dbp.lastEvent,
	}
}

// SuppressSignal configures sig to be swallowed instead of re-delivered
// when it stops the target.
func (dbp *nativeProcess) SuppressSignal(sig syscall.Signal, suppress bool) {
	if suppress {
		dbp.suppressSignals[sig] = true
	} else {
		delete(dbp.suppressSignals, sig)
	}
}

// requireStopped returns the error for op if the process cannot currently
// be inspected or mutated.
func (dbp *nativeProcess) requireStopped(op string) error {
	switch {
	case dbp.detached:
		return proc.ProcessDetachedError{Pid: dbp.pid}
	case dbp.state == proc.Exited:
		return proc.ProcessExitedError{Pid: dbp.pid, Status: dbp.exitStatus}
	case dbp.state == proc.Terminated:
		return proc.ProcessTerminatedError{Pid: dbp.pid, Signal: dbp.termSignal}
	case dbp.state != proc.Stopped:
		return proc.InvalidStateError{Op: op, State: dbp.state}
	}
	return nil
}

// Resume continues execution until the next trap, signal or exit. If the
// target stands on an enabled breakpoint the step-over protocol runs
// first, otherwise the trap instruction would immediately re-trigger.
func (dbp *nativeProcess) Resume() (*proc.StopEvent, error) {
	if err := dbp.requireStopped("resume"); err != nil {
		return nil, err
	}
	ev, err := dbp.stepOverBreakpoint()
	if err != nil {
		return nil, err
	}
	if ev != nil {
		// The step-over itself produced a reportable event (exit,
		// termination or a foreign signal); surface it instead of
		// continuing.
		return ev, nil
	}

	sig := dbp.takePendingSignal()
	var contErr error
	dbp.execPtraceFunc(func() { contErr = ptraceCont(dbp.pid, int(sig)) })
	if contErr != nil {
		return nil, contErr
	}
	dbp.state = proc.Running
	dbp.regs = nil
	procLog().Debugf("resumed pid %d (signal %d)", dbp.pid, sig)

	return dbp.waitAndClassify(false)
}

// StepInstruction executes exactly one machine instruction. If the target
// stands on an enabled breakpoint, the breakpoint is lifted for the
// duration of the step and reinstated afterwards.
func (dbp *nativeProcess) StepInstruction() (*proc.StopEvent, error) {
	if err := dbp.requireStopped("step"); err != nil {
		return nil, err
	}
	regs, err := dbp.Registers()
	if err != nil {
		return nil, err
	}
	pc := regs.PC()
	if bp, ok := dbp.breakpoints.Get(pc); ok && bp.Enabled {
		if err := dbp.breakpoints.Disable(pc); err != nil {
			return nil, err
		}
		ev, err := dbp.stepInstructionRaw()
		if dbp.state == proc.Stopped {
			if enableErr := dbp.breakpoints.Enable(pc); enableErr != nil && err == nil {
				err = enableErr
			}
		}
		return ev, err
	}
	return dbp.stepInstructionRaw()
}

// stepOverBreakpoint implements the step-over protocol: lift the
// breakpoint under the program counter, step one instruction, put the
// breakpoint back. Returns a non-nil event if the step produced something
// the caller has to report instead of continuing.
func (dbp *nativeProcess) stepOverBreakpoint() (*proc.StopEvent, error) {
	regs, err := dbp.Registers()
	if err != nil {
		return nil, err
	}
	pc := regs.PC()
	bp, ok := dbp.breakpoints.Get(pc)
	if !ok || !bp.Enabled {
		return nil, nil
	}
	procLog().Debugf("stepping over breakpoint at %#x", pc)
	if err := dbp.breakpoints.Disable(pc); err != nil {
		return nil, err
	}
	ev, err := dbp.stepInstructionRaw()
	if err != nil {
		return nil, err
	}
	if dbp.state == proc.Stopped {
		if err := dbp.breakpoints.Enable(pc); err != nil {
			return nil, err
		}
	}
	if ev.Reason == proc.StopStep {
		// Internal step, not an event the caller asked for.
		return nil, nil
	}
	return ev, nil
}

// stepInstructionRaw issues PTRACE_SINGLESTEP and classifies the resulting
// stop. The pending signal, if any, is delivered with the step.
func (dbp *nativeProcess) stepInstructionRaw() (*proc.StopEvent, error) {
	sig := dbp.takePendingSignal()
	var stepErr error
	dbp.execPtraceFunc(func() { stepErr = ptraceSingleStep(dbp.pid, int(sig)) })
	if stepErr != nil {
		return nil, stepErr
	}
	dbp.state = proc.Running
	dbp.regs = nil
	return dbp.waitAndClassify(true)
}

func (dbp *nativeProcess) takePendingSignal() syscall.Signal {
	sig := dbp.pendingSignal
	dbp.pendingSignal = 0
	if sig != 0 && dbp.suppressSignals[sig] {
		procLog().Debugf("suppressing signal %d", sig)
		return 0
	}
	return sig
}

// SetBreakpoint plants an enabled breakpoint at addr.
func (dbp *nativeProcess) SetBreakpoint(addr uint64) (*proc.Breakpoint, error) {
	if err := dbp.requireStopped("set breakpoint"); err != nil {
		return nil, err
	}
	bp, err := dbp.breakpoints.Set(addr)
	if err == nil {
		procLog().Debugf("breakpoint set at %#x", addr)
	}
	return bp, err
}

// ClearBreakpoint restores the original instruction at addr and removes
// the breakpoint.
func (dbp *nativeProcess) ClearBreakpoint(addr uint64) (*proc.Breakpoint, error) {
	if err := dbp.requireStopped("clear breakpoint"); err != nil {
		return nil, err
	}
	return dbp.breakpoints.Clear(addr)
}

// EnableBreakpoint re-arms a disabled breakpoint.
func (dbp *nativeProcess) EnableBreakpoint(addr uint64) error {
	if err := dbp.requireStopped("enable breakpoint"); err != nil {
		return err
	}
	return dbp.breakpoints.Enable(addr)
}

// DisableBreakpoint lifts a breakpoint without forgetting it.
func (dbp *nativeProcess) DisableBreakpoint(addr uint64) error {
	if err := dbp.requireStopped("disable breakpoint"); err != nil {
		return err
	}
	return dbp.breakpoints.Disable(addr)
}

// Breakpoints returns the breakpoint table.
func (dbp *nativeProcess) Breakpoints() *proc.BreakpointMap {
	return &dbp.breakpoints
}

// Registers returns the register snapshot taken at the last stop.
func (dbp *nativeProcess) Registers() (proc.Registers, error) {
	if err := dbp.requireStopped("read registers"); err != nil {
		return nil, err
	}
	if dbp.regs == nil {
		if err := dbp.refreshRegisters(); err != nil {
			return nil, err
		}
	}
	return dbp.regs, nil
}

// SetRegister writes value to the named register in the live thread and
// refreshes the snapshot.
func (dbp *nativeProcess) SetRegister(name string, value uint64) error {
	if err := dbp.requireStopped("write register"); err != nil {
		return err
	}
	return dbp.setRegister(name, value)
}

// PC returns the current program counter.
func (dbp *nativeProcess) PC() (uint64, error) {
	regs, err := dbp.Registers()
	if err != nil {
		return 0, err
	}
	return regs.PC(), nil
}

// SetPC sets the program counter.
func (dbp *nativeProcess) SetPC(pc uint64) error {
	if err := dbp.requireStopped("write program counter"); err != nil {
		return err
	}
	return dbp.setPC(pc)
}

// Kill terminates and reaps the target unconditionally. Best effort: once
// Kill returns the process is gone as far as the caller is concerned.
func (dbp *nativeProcess) Kill() error {
	if dbp.detached || dbp.state == proc.Exited || dbp.state == proc.Terminated {
		return nil
	}
	if err := sys.Kill(dbp.pid, sys.SIGKILL); err != nil {
		return err
	}
	if dbp.state == proc.Stopped {
		// Let the pending kill be acted upon.
		dbp.execPtraceFunc(func() { _ = ptraceCont(dbp.pid, 0) })
	}
	for {
		wpid, status, err := dbp.wait(dbp.pid, 0)
		if err != nil {
			// Already reaped elsewhere; mark it down.
			dbp.termSignal = sys.SIGKILL
			dbp.postExit(proc.Terminated)
			return nil
		}
		if wpid == dbp.pid && status.Signaled() {
			dbp.termSignal = status.Signal()
			dbp.lastEvent = &proc.StopEvent{Reason: proc.StopTerminated, Signal: status.Signal()}
			dbp.postExit(proc.Terminated)
			return nil
		}
		if wpid == dbp.pid && status.Exited() {
			dbp.exitStatus = status.ExitStatus()
			dbp.lastEvent = &proc.StopEvent{Reason: proc.StopExited, ExitStatus: status.ExitStatus()}
			dbp.postExit(proc.Exited)
			return nil
		}
	}
}

// Detach releases trace control over the target. All breakpoints are
// restored first so the process keeps running unpatched code.
func (dbp *nativeProcess) Detach() error {
	if err := dbp.requireStopped("detach"); err != nil {
		return err
	}
	if err := dbp.breakpoints.ClearAll(); err != nil {
		return err
	}
	var err error
	dbp.execPtraceFunc(func() { err = ptraceDetach(dbp.pid, 0) })
	if err != nil {
		return err
	}
	procLog().Debugf("detached from pid %d", dbp.pid)
	dbp.detached = true
	dbp.release()
	return nil
}

// postExit records the final state and releases process resources.
func (dbp *nativeProcess) postExit(kind proc.StateKind) {
	dbp.state = kind
	dbp.regs = nil
	dbp.release()
}

func (dbp *nativeProcess) release() {
	if dbp.memFile != nil {
		dbp.memFile.Close()
		dbp.memFile = nil
	}
	if dbp.ptmx != nil {
		dbp.ptmx.Close()
		dbp.ptmx = nil
	}
	close(dbp.ptraceChan)
	close(dbp.ptraceDoneChan)
}
