//go:build linux

package native

import (
	"fmt"

	sys "golang.org/x/sys/unix"

	"github.com/debugworks/godbg/pkg/proc"
)

// waitAndClassify blocks until the target reports its next wait status and
// turns it into a StopEvent. stepping marks that the stop was requested by
// a single-step, which is how step traps are told apart from stray SIGTRAPs.
//
// For a breakpoint trap on architectures where the trap instruction
// advances the instruction counter, the program counter is rewound onto the
// breakpoint address before the event is built. Without the correction the
// reported stop location would be one trap-length past the breakpoint.
func (dbp *nativeProcess) waitAndClassify(stepping bool) (*proc.StopEvent, error) {
	wpid, status, err := dbp.wait(dbp.pid, 0)
	if err != nil {
		return nil, fmt.Errorf("wait err %s %d", err, wpid)
	}

	switch {
	case status.Exited():
		dbp.exitStatus = status.ExitStatus()
		dbp.lastEvent = &proc.StopEvent{Reason: proc.StopExited, ExitStatus: dbp.exitStatus}
		dbp.postExit(proc.Exited)
		procLog().Debugf("pid %d exited with status %d", dbp.pid, dbp.exitStatus)
		return dbp.lastEvent, nil

	case status.Signaled():
		dbp.termSignal = status.Signal()
		dbp.lastEvent = &proc.StopEvent{Reason: proc.StopTerminated, Signal: dbp.termSignal}
		dbp.postExit(proc.Terminated)
		procLog().Debugf("pid %d terminated by signal %d", dbp.pid, dbp.termSignal)
		return dbp.lastEvent, nil

	case status.Stopped():
		dbp.state = proc.Stopped
		if err := dbp.refreshRegisters(); err != nil {
			return nil, err
		}
		ev, err := dbp.classifyStop(status.StopSignal(), stepping)
		if err != nil {
			return nil, err
		}
		dbp.lastEvent = ev
		procLog().Debugf("pid %d stopped: %s", dbp.pid, ev)
		return ev, nil
	}

	return nil, fmt.Errorf("unexpected wait status %#x for pid %d", uint32(*status), wpid)
}

func (dbp *nativeProcess) classifyStop(sig sys.Signal, stepping bool) (*proc.StopEvent, error) {
	pc := dbp.regs.PC()

	if sig == sys.SIGTRAP {
		bpAddr := pc
		if dbp.arch.BreakInstrMovesPC() {
			bpAddr = pc - uint64(dbp.arch.BreakpointSize())
		}
		if bp, ok := dbp.breakpoints.Get(bpAddr); ok && bp.Enabled && !stepping {
			if dbp.arch.BreakInstrMovesPC() {
				if err := dbp.setPC(bpAddr); err != nil {
					return nil, err
				}
			}
			bp.TotalHitCount++
			if bp.Temp {
				if _, err := dbp.breakpoints.Clear(bpAddr); err != nil {
					return nil, err
				}
			}
			return &proc.StopEvent{Reason: proc.StopBreakpoint, Addr: bpAddr, Breakpoint: bp}, nil
		}
		if stepping {
			return &proc.StopEvent{Reason: proc.StopStep, Addr: pc}, nil
		}
		// A trap we did not plant, e.g. a manual stop request. Not held
		// pending: re-delivering a SIGTRAP to the target would kill it.
		return &proc.StopEvent{Reason: proc.StopSignal, Signal: sys.SIGTRAP, Addr: pc}, nil
	}

	// Any other stop signal is reported and held pending for re-delivery
	// on the next resume, unless configured to be suppressed.
	dbp.pendingSignal = sig
	return &proc.StopEvent{Reason: proc.StopSignal, Signal: sig, Addr: pc}, nil
}
