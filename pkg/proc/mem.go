package proc

import "io"

// MemoryReader is like io.ReaderAt, but the offset is a uint64 so that it
// can address all of 64-bit memory.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// MemoryReadWriter is an interface for reading and writing the traced
// process's address space. Ranges may cross page boundaries. Writes are
// atomic per call: either the whole range is written or the target memory
// is unchanged and a MemoryFaultError is returned.
type MemoryReadWriter interface {
	MemoryReader
	WriteMemory(addr uint64, data []byte) (written int, err error)
}

// ReadBytes reads size bytes at addr, failing unless the read is complete.
func ReadBytes(mem MemoryReader, addr uint64, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := mem.ReadMemory(buf, addr)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, MemoryFaultError{Addr: addr + uint64(n), Err: io.ErrUnexpectedEOF}
	}
	return buf, nil
}
