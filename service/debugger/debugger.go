// Package debugger provides the session layer between a user interface and
// the traced process: command-level operations that compose trace control,
// the breakpoint table and the register file, with typed errors surfaced
// to the caller instead of being swallowed.
package debugger

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
	sys "golang.org/x/sys/unix"

	"github.com/debugworks/godbg/pkg/logflags"
	"github.com/debugworks/godbg/pkg/proc"
	"github.com/debugworks/godbg/pkg/proc/native"
)

// Config provides the configuration to start a Debugger.
//
// Only one of ProcessArgs or AttachPid should be specified. If ProcessArgs
// is provided, a new process will be launched. Otherwise, the debugger will
// try to attach to an existing process with AttachPid.
type Config struct {
	// ProcessArgs are the arguments to launch a new process.
	ProcessArgs []string
	// WorkingDir is the working directory for the target.
	WorkingDir string
	// AttachPid is the PID of an existing process to which the debugger
	// should attach.
	AttachPid int

	// LaunchFlags adjust how a process is launched.
	LaunchFlags proc.LaunchFlags

	// SuppressSignals lists signal names that are reported but not
	// re-delivered to the target.
	SuppressSignals []string

	// TargetOutputFn receives the target's pty output, one line per call.
	TargetOutputFn func(string)
}

// Debugger serializes the commands of one debug session onto one traced
// process. It holds no target state of its own beyond the process handle;
// every query is answered from the process.
type Debugger struct {
	config *Config
	// processMutex protects the target: all commands are serialized, per
	// the ptrace contract that a traced process has exactly one
	// controlling thread.
	processMutex sync.Mutex
	target       proc.Process

	// targetPid mirrors the target's PID for readers that must not take
	// processMutex, such as Interrupt while a Continue is in flight. Read
	// and written atomically.
	targetPid int64

	stopEventFns []func(*proc.StopEvent)

	log *logrus.Entry
}

// New creates a new Debugger, launching or attaching per config.
func New(config *Config) (*Debugger, error) {
	d := &Debugger{
		config: config,
		log:    logflags.DebuggerLogger(),
	}

	var err error
	switch {
	case d.config.AttachPid > 0:
		d.log.Infof("attaching to pid %d", d.config.AttachPid)
		d.target, err = native.Attach(d.config.AttachPid)
	case len(d.config.ProcessArgs) > 0:
		d.log.Infof("launching process with args: %v", d.config.ProcessArgs)
		d.target, err = native.Launch(d.config.ProcessArgs, d.config.WorkingDir, d.config.LaunchFlags, d.config.TargetOutputFn)
	default:
		err = fmt.Errorf("no attach pid or process args specified")
	}
	if err != nil {
		return nil, err
	}

	if err := d.applySignalPolicy(); err != nil {
		d.target.Kill()
		return nil, err
	}
	atomic.StoreInt64(&d.targetPid, int64(d.target.Pid()))
	return d, nil
}

func (d *Debugger) applySignalPolicy() error {
	for _, name := range d.config.SuppressSignals {
		sig := sys.SignalNum(name)
		if sig == 0 {
			return fmt.Errorf("unknown signal name %q in suppress-signals", name)
		}
		d.target.SuppressSignal(sig, true)
	}
	return nil
}

// SubscribeStopEvents registers fn to be called with every stop event
// produced by Continue and Step. Must be called before commands start
// flowing; observers run on the command's calling goroutine.
func (d *Debugger) SubscribeStopEvents(fn func(*proc.StopEvent)) {
	d.stopEventFns = append(d.stopEventFns, fn)
}

func (d *Debugger) notify(ev *proc.StopEvent) {
	for _, fn := range d.stopEventFns {
		fn(ev)
	}
}

// AttachedToExistingProcess reports whether this debugger was attached
// to an already running process rather than launching one itself.
func (d *Debugger) AttachedToExistingProcess() bool {
	return d.config.AttachPid > 0
}

// Pid returns the PID of the target process.
func (d *Debugger) Pid() int {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.Pid()
}

// Interrupt sends SIGINT to the target without taking processMutex. While
// a Continue is in flight the mutex is held until the target stops, so
// this is the only way to get a running target's attention.
func (d *Debugger) Interrupt() error {
	return sys.Kill(int(atomic.LoadInt64(&d.targetPid)), sys.SIGINT)
}

// State returns the current lifecycle state of the target.
func (d *Debugger) State() proc.State {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.State()
}

// CreateBreakpoint plants an enabled breakpoint at addr.
func (d *Debugger) CreateBreakpoint(addr uint64) (*proc.Breakpoint, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	bp, err := d.target.SetBreakpoint(addr)
	if err != nil {
		return nil, err
	}
	d.log.Infof("created breakpoint at %#x", bp.Addr)
	return bp, nil
}

// ClearBreakpoint restores the original bytes at addr and removes the
// breakpoint.
func (d *Debugger) ClearBreakpoint(addr uint64) (*proc.Breakpoint, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	bp, err := d.target.ClearBreakpoint(addr)
	if err != nil {
		return nil, err
	}
	d.log.Infof("cleared breakpoint at %#x", bp.Addr)
	return bp, nil
}

// EnableBreakpoint re-arms a disabled breakpoint at addr.
func (d *Debugger) EnableBreakpoint(addr uint64) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.EnableBreakpoint(addr)
}

// DisableBreakpoint lifts the breakpoint at addr without forgetting it.
func (d *Debugger) DisableBreakpoint(addr uint64) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.DisableBreakpoint(addr)
}

// Breakpoints returns the user breakpoints sorted by address.
func (d *Debugger) Breakpoints() []*proc.Breakpoint {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	var bps []*proc.Breakpoint
	for _, bp := range d.target.Breakpoints().M {
		if bp.Temp {
			continue
		}
		bps = append(bps, bp)
	}
	sort.Slice(bps, func(i, j int) bool { return bps[i].Addr < bps[j].Addr })
	return bps
}

// Continue resumes execution until the next breakpoint, signal or exit.
func (d *Debugger) Continue() (*proc.StopEvent, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	ev, err := d.target.Resume()
	if err != nil {
		return nil, err
	}
	d.notify(ev)
	return ev, nil
}

// Step executes a single machine instruction.
func (d *Debugger) Step() (*proc.StopEvent, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	ev, err := d.target.StepInstruction()
	if err != nil {
		return nil, err
	}
	d.notify(ev)
	return ev, nil
}

// ContinueUntil plants a one-shot breakpoint at addr and resumes. The
// breakpoint is removed as soon as it is hit, and never shows up in
// breakpoint listings.
func (d *Debugger) ContinueUntil(addr uint64) (*proc.StopEvent, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	if _, err := d.target.Breakpoints().SetTemp(addr); err != nil {
		return nil, err
	}
	ev, err := d.target.Resume()
	if err != nil {
		return nil, err
	}
	d.notify(ev)
	return ev, nil
}

// ReadRegister returns the value of the named register from the snapshot
// taken at the last stop.
func (d *Debugger) ReadRegister(name string) (uint64, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	regs, err := d.target.Registers()
	if err != nil {
		return 0, err
	}
	return regs.Get(name)
}

// WriteRegister writes value to the named register in the live target.
func (d *Debugger) WriteRegister(name string, value uint64) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.SetRegister(name, value)
}

// Registers returns all registers of the last stop, optionally with the
// floating point registers.
func (d *Debugger) Registers(floatingPoint bool) ([]proc.Register, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	regs, err := d.target.Registers()
	if err != nil {
		return nil, err
	}
	return regs.Slice(floatingPoint)
}

// ProgramCounter returns the target's current program counter.
func (d *Debugger) ProgramCounter() (uint64, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.PC()
}

// ReadMemory reads length bytes at addr from the target.
func (d *Debugger) ReadMemory(addr uint64, length int) ([]byte, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return proc.ReadBytes(d.target, addr, length)
}

// WriteMemory writes data at addr in the target.
func (d *Debugger) WriteMemory(addr uint64, data []byte) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	_, err := d.target.WriteMemory(addr, data)
	return err
}

// Restart kills the current target and launches a fresh one, re-planting
// all user breakpoints. newArgs replaces the target argument list when
// non-nil. Only valid for launched targets.
func (d *Debugger) Restart(newArgs []string) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	if len(d.config.ProcessArgs) == 0 {
		return fmt.Errorf("cannot restart an attached process")
	}
	if newArgs != nil {
		d.config.ProcessArgs = append([]string{d.config.ProcessArgs[0]}, newArgs...)
	}

	var bpAddrs []uint64
	for _, bp := range d.target.Breakpoints().M {
		if !bp.Temp {
			bpAddrs = append(bpAddrs, bp.Addr)
		}
	}
	if err := d.target.Kill(); err != nil {
		return err
	}

	target, err := native.Launch(d.config.ProcessArgs, d.config.WorkingDir, d.config.LaunchFlags, d.config.TargetOutputFn)
	if err != nil {
		return err
	}
	d.target = target
	atomic.StoreInt64(&d.targetPid, int64(d.target.Pid()))
	if err := d.applySignalPolicy(); err != nil {
		return err
	}
	for _, addr := range bpAddrs {
		if _, err := d.target.SetBreakpoint(addr); err != nil {
			d.log.Warnf("could not restore breakpoint at %#x: %v", addr, err)
		}
	}
	d.log.Infof("restarted target as pid %d", d.target.Pid())
	return nil
}

// Kill terminates the target unconditionally.
func (d *Debugger) Kill() error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	return d.target.Kill()
}

// Detach releases the target, restoring its original code first. If kill
// is set the target is terminated instead of released.
func (d *Debugger) Detach(kill bool) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	if kill {
		return d.target.Kill()
	}
	return d.target.Detach()
}

// SuppressSignal changes the re-delivery policy for one signal at runtime.
func (d *Debugger) SuppressSignal(sig syscall.Signal, suppress bool) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()
	d.target.SuppressSignal(sig, suppress)
}
