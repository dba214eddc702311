//go:build linux && riscv64

package native

import (
	"debug/elf"
	"fmt"
	"syscall"
	"unsafe"

	sys "golang.org/x/sys/unix"

	"github.com/debugworks/godbg/pkg/proc/linutil"
)

const _RISCV64_GREGS_SIZE = 32 * 8

func ptraceGetGRegs(pid int, regs *linutil.RISCV64PtraceRegs) error {
	iov := sys.Iovec{Base: (*byte)(unsafe.Pointer(regs)), Len: _RISCV64_GREGS_SIZE}
	_, _, err := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_GETREGSET, uintptr(pid), uintptr(elf.NT_PRSTATUS), uintptr(unsafe.Pointer(&iov)), 0, 0)
	if err != syscall.Errno(0) {
		return err
	}
	return nil
}

func ptraceSetGRegs(pid int, regs *linutil.RISCV64PtraceRegs) error {
	iov := sys.Iovec{Base: (*byte)(unsafe.Pointer(regs)), Len: _RISCV64_GREGS_SIZE}
	_, _, err := syscall.Syscall6(syscall.SYS_PTRACE, sys.PTRACE_SETREGSET, uintptr(pid), uintptr(elf.NT_PRSTATUS), uintptr(unsafe.Pointer(&iov)), 0, 0)
	if err != syscall.Errno(0) {
		return err
	}
	return nil
}

// refreshRegisters retakes the register snapshot from the stopped thread.
func (dbp *nativeProcess) refreshRegisters() error {
	var (
		regs linutil.RISCV64PtraceRegs
		err  error
	)
	dbp.execPtraceFunc(func() { err = ptraceGetGRegs(dbp.pid, &regs) })
	if err != nil {
		return fmt.Errorf("could not get registers: %v", err)
	}
	dbp.regs = linutil.NewRISCV64Registers(&regs)
	return nil
}

// setPC sets PC to the value specified by pc.
func (dbp *nativeProcess) setPC(pc uint64) error {
	return dbp.setRegister("pc", pc)
}

// setRegister writes value to the named register in the live thread and
// keeps the snapshot current.
func (dbp *nativeProcess) setRegister(name string, value uint64) error {
	if dbp.regs == nil {
		if err := dbp.refreshRegisters(); err != nil {
			return err
		}
	}
	r := dbp.regs.(*linutil.RISCV64Registers)
	if err := r.SetReg(name, value); err != nil {
		return err
	}
	var err error
	dbp.execPtraceFunc(func() { err = ptraceSetGRegs(dbp.pid, r.Regs) })
	return err
}
