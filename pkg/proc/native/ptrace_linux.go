//go:build linux

package native

import (
	"syscall"

	sys "golang.org/x/sys/unix"
)

// ptraceAttach executes the sys.PtraceAttach call.
func ptraceAttach(pid int) error {
	return sys.PtraceAttach(pid)
}

// ptraceDetach calls ptrace(PTRACE_DETACH).
func ptraceDetach(tid, sig int) error {
	_, _, err := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_DETACH, uintptr(tid), 1, uintptr(sig), 0, 0)
	if err != syscall.Errno(0) {
		return err
	}
	return nil
}

// ptraceCont executes ptrace PTRACE_CONT, delivering sig to the target if
// it is non-zero.
func ptraceCont(tid, sig int) error {
	return sys.PtraceCont(tid, sig)
}

// ptraceSingleStep executes ptrace PTRACE_SINGLESTEP, delivering sig to
// the target if it is non-zero.
func ptraceSingleStep(tid, sig int) error {
	_, _, e1 := sys.Syscall6(sys.SYS_PTRACE, uintptr(sys.PTRACE_SINGLESTEP), uintptr(tid), uintptr(0), uintptr(sig), 0, 0)
	if e1 != 0 {
		return e1
	}
	return nil
}

// ptracePeekData reads len(data) bytes at addr word by word.
func ptracePeekData(tid int, addr uint64, data []byte) (int, error) {
	return sys.PtracePeekData(tid, uintptr(addr), data)
}

// ptracePokeData writes data at addr word by word, doing a
// read-modify-write for the unaligned edges.
func ptracePokeData(tid int, addr uint64, data []byte) (int, error) {
	return sys.PtracePokeData(tid, uintptr(addr), data)
}

// processVMRead calls process_vm_readv.
func processVMRead(pid int, addr uint64, data []byte) (int, error) {
	localIov := []sys.Iovec{{Base: &data[0], Len: uint64(len(data))}}
	remoteIov := []sys.RemoteIovec{{Base: uintptr(addr), Len: len(data)}}
	return sys.ProcessVMReadv(pid, localIov, remoteIov, 0)
}
