//go:build linux && amd64

package native

import (
	"fmt"
	"syscall"
	"unsafe"

	sys "golang.org/x/sys/unix"

	"github.com/debugworks/godbg/pkg/proc/linutil"
)

// refreshRegisters retakes the register snapshot from the stopped thread.
func (dbp *nativeProcess) refreshRegisters() error {
	var (
		regs linutil.AMD64PtraceRegs
		err  error
	)
	dbp.execPtraceFunc(func() { err = sys.PtraceGetRegs(dbp.pid, (*sys.PtraceRegs)(&regs)) })
	if err != nil {
		return fmt.Errorf("could not get registers: %v", err)
	}
	dbp.regs = linutil.NewAMD64Registers(&regs, func(r *linutil.AMD64Registers) error {
		var fpregs linutil.AMD64PtraceFpRegs
		var floatLoadError error
		dbp.execPtraceFunc(func() { floatLoadError = ptraceGetFpRegs(dbp.pid, &fpregs) })
		r.Fpregs = fpregs.Decode()
		return floatLoadError
	})
	return nil
}

// setPC sets RIP to the value specified by pc.
func (dbp *nativeProcess) setPC(pc uint64) error {
	return dbp.setRegister("rip", pc)
}

// setRegister writes value to the named register in the live thread and
// keeps the snapshot current.
func (dbp *nativeProcess) setRegister(name string, value uint64) error {
	if dbp.regs == nil {
		if err := dbp.refreshRegisters(); err != nil {
			return err
		}
	}
	r := dbp.regs.(*linutil.AMD64Registers)
	if err := r.SetReg(name, value); err != nil {
		return err
	}
	var err error
	dbp.execPtraceFunc(func() { err = sys.PtraceSetRegs(dbp.pid, (*sys.PtraceRegs)(r.Regs)) })
	return err
}

func ptraceGetFpRegs(tid int, fpregs *linutil.AMD64PtraceFpRegs) error {
	_, _, err := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_GETFPREGS, uintptr(tid), 0, uintptr(unsafe.Pointer(fpregs)), 0, 0)
	if err != syscall.Errno(0) {
		return err
	}
	return nil
}
