package proc

import (
	"bytes"
	"errors"
	"testing"
)

// fakeMemory is an in-process MemoryReadWriter backed by a byte slice
// starting at base.
type fakeMemory struct {
	base uint64
	data []byte
}

func newFakeMemory(base uint64, size int) *fakeMemory {
	mem := &fakeMemory{base: base, data: make([]byte, size)}
	for i := range mem.data {
		mem.data[i] = byte(i)
	}
	return mem
}

func (m *fakeMemory) ReadMemory(buf []byte, addr uint64) (int, error) {
	off := int(addr - m.base)
	if off < 0 || off+len(buf) > len(m.data) {
		return 0, MemoryFaultError{Addr: addr, Err: errors.New("out of range")}
	}
	copy(buf, m.data[off:])
	return len(buf), nil
}

func (m *fakeMemory) WriteMemory(addr uint64, data []byte) (int, error) {
	off := int(addr - m.base)
	if off < 0 || off+len(data) > len(m.data) {
		return 0, MemoryFaultError{Addr: addr, Err: errors.New("out of range")}
	}
	copy(m.data[off:], data)
	return len(data), nil
}

func testBreakpointMap(t *testing.T) (BreakpointMap, *fakeMemory) {
	t.Helper()
	arch, err := ArchFromGOARCH("amd64")
	if err != nil {
		t.Fatal(err)
	}
	mem := newFakeMemory(0x1000, 256)
	return NewBreakpointMap(arch, mem), mem
}

func TestBreakpointSetPatchesTrap(t *testing.T) {
	bpmap, mem := testBreakpointMap(t)

	bp, err := bpmap.Set(0x1010)
	if err != nil {
		t.Fatal(err)
	}
	if !bp.Enabled {
		t.Fatal("new breakpoint not enabled")
	}
	if !bytes.Equal(bp.OriginalData, []byte{0x10}) {
		t.Fatalf("wrong saved bytes: %x", bp.OriginalData)
	}
	if mem.data[0x10] != 0xcc {
		t.Fatalf("trap instruction not written: %#x", mem.data[0x10])
	}
}

func TestBreakpointClearRestores(t *testing.T) {
	bpmap, mem := testBreakpointMap(t)

	if _, err := bpmap.Set(0x1010); err != nil {
		t.Fatal(err)
	}
	if _, err := bpmap.Clear(0x1010); err != nil {
		t.Fatal(err)
	}
	if mem.data[0x10] != 0x10 {
		t.Fatalf("original byte not restored: %#x", mem.data[0x10])
	}
	if bpmap.Has(0x1010) {
		t.Fatal("cleared breakpoint still in table")
	}
}

func TestBreakpointDisableEnable(t *testing.T) {
	bpmap, mem := testBreakpointMap(t)

	if _, err := bpmap.Set(0x1010); err != nil {
		t.Fatal(err)
	}
	if err := bpmap.Disable(0x1010); err != nil {
		t.Fatal(err)
	}
	if mem.data[0x10] != 0x10 {
		t.Fatalf("disable did not restore original byte: %#x", mem.data[0x10])
	}
	if !bpmap.Has(0x1010) {
		t.Fatal("disabled breakpoint forgotten")
	}

	if err := bpmap.Enable(0x1010); err != nil {
		t.Fatal(err)
	}
	if mem.data[0x10] != 0xcc {
		t.Fatalf("enable did not rewrite trap: %#x", mem.data[0x10])
	}
}

func TestBreakpointErrors(t *testing.T) {
	bpmap, _ := testBreakpointMap(t)

	if _, err := bpmap.Set(0x1010); err != nil {
		t.Fatal(err)
	}
	var exists BreakpointExistsError
	if _, err := bpmap.Set(0x1010); !errors.As(err, &exists) {
		t.Fatalf("expected BreakpointExistsError, got %v", err)
	}

	var nobp NoBreakpointError
	if _, err := bpmap.Clear(0x1020); !errors.As(err, &nobp) {
		t.Fatalf("expected NoBreakpointError, got %v", err)
	}
	if err := bpmap.Enable(0x1020); !errors.As(err, &nobp) {
		t.Fatalf("expected NoBreakpointError, got %v", err)
	}
}

func TestBreakpointTempAutoOneShot(t *testing.T) {
	bpmap, _ := testBreakpointMap(t)

	bp, err := bpmap.SetTemp(0x1010)
	if err != nil {
		t.Fatal(err)
	}
	if !bp.Temp {
		t.Fatal("SetTemp did not mark the breakpoint as one-shot")
	}

	// A user breakpoint at the same address takes precedence.
	user, err := bpmap.Set(0x1020)
	if err != nil {
		t.Fatal(err)
	}
	again, err := bpmap.SetTemp(0x1020)
	if err != nil {
		t.Fatal(err)
	}
	if again != user || again.Temp {
		t.Fatal("SetTemp replaced an existing user breakpoint")
	}
}

func TestBreakpointClearAll(t *testing.T) {
	bpmap, mem := testBreakpointMap(t)

	for _, addr := range []uint64{0x1010, 0x1020, 0x1030} {
		if _, err := bpmap.Set(addr); err != nil {
			t.Fatal(err)
		}
	}
	if err := bpmap.ClearAll(); err != nil {
		t.Fatal(err)
	}
	if len(bpmap.M) != 0 {
		t.Fatalf("%d breakpoints left after ClearAll", len(bpmap.M))
	}
	for _, off := range []int{0x10, 0x20, 0x30} {
		if mem.data[off] != byte(off) {
			t.Fatalf("byte at offset %#x not restored: %#x", off, mem.data[off])
		}
	}
}

func TestBreakpointOnExistingTrapByte(t *testing.T) {
	bpmap, mem := testBreakpointMap(t)

	// Text that already holds a trap byte, like linker padding between
	// functions, is a valid breakpoint site.
	mem.data[0x10] = 0xcc
	bp, err := bpmap.Set(0x1010)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bp.OriginalData, []byte{0xcc}) {
		t.Fatalf("wrong saved bytes: %x", bp.OriginalData)
	}
	if _, err := bpmap.Clear(0x1010); err != nil {
		t.Fatal(err)
	}
	if mem.data[0x10] != 0xcc {
		t.Fatalf("original trap byte not restored: %#x", mem.data[0x10])
	}
}
