//go:build linux

package native

import (
	"github.com/debugworks/godbg/pkg/proc"
)

// ReadMemory reads len(data) bytes at addr in the traced process. Ranges
// crossing page boundaries are handled by the kernel on every path.
func (dbp *nativeProcess) ReadMemory(data []byte, addr uint64) (int, error) {
	if err := dbp.requireStopped("read memory"); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	n, err := dbp.readMemoryRaw(data, addr)
	if err != nil {
		return n, proc.MemoryFaultError{Addr: addr + uint64(n), Err: err}
	}
	return n, nil
}

// WriteMemory writes data at addr in the traced process. The write is
// atomic from the caller's perspective: on failure any partially written
// prefix is rolled back before MemoryFaultError is returned.
func (dbp *nativeProcess) WriteMemory(addr uint64, data []byte) (int, error) {
	if err := dbp.requireStopped("write memory"); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	original := make([]byte, len(data))
	if n, err := dbp.readMemoryRaw(original, addr); err != nil {
		// If the range cannot even be read, no byte of it can be written
		// either; report the fault before touching anything.
		return 0, proc.MemoryFaultError{Addr: addr + uint64(n), Err: err}
	}

	n, err := dbp.writeMemoryRaw(addr, data)
	if err == nil && n == len(data) {
		return n, nil
	}
	if n > 0 {
		// Roll the prefix back so the call leaves no partial write behind.
		dbp.writeMemoryRaw(addr, original[:n])
	}
	return 0, proc.MemoryFaultError{Addr: addr + uint64(n), Err: err}
}

// readMemoryRaw tries the proc memory file, then process_vm_readv, then
// word-at-a-time PTRACE_PEEKDATA.
func (dbp *nativeProcess) readMemoryRaw(data []byte, addr uint64) (int, error) {
	if dbp.memFile != nil {
		if n, err := dbp.memFile.ReadAt(data, int64(addr)); err == nil {
			return n, nil
		}
	}
	if n, err := processVMRead(dbp.pid, addr, data); err == nil && n == len(data) {
		return n, nil
	}
	var (
		n   int
		err error
	)
	dbp.execPtraceFunc(func() { n, err = ptracePeekData(dbp.pid, addr, data) })
	return n, err
}

// writeMemoryRaw mirrors readMemoryRaw for writes. process_vm_writev is
// not attempted: it cannot write to write-protected pages, where
// breakpoint traps go.
func (dbp *nativeProcess) writeMemoryRaw(addr uint64, data []byte) (int, error) {
	if dbp.memFile != nil {
		if n, err := dbp.memFile.WriteAt(data, int64(addr)); err == nil {
			return n, nil
		}
	}
	var (
		n   int
		err error
	)
	dbp.execPtraceFunc(func() { n, err = ptracePokeData(dbp.pid, addr, data) })
	return n, err
}
