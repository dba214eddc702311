package proc

import (
	"fmt"
)

// Breakpoint represents a software breakpoint: a trap instruction patched
// over the original text at Addr. OriginalData holds the bytes that were
// replaced and is what makes disable/clear restoration possible.
type Breakpoint struct {
	Addr         uint64
	OriginalData []byte
	Enabled      bool

	// Temp marks a one-shot breakpoint planted internally. It is cleared
	// automatically the first time it is hit and never surfaces in user
	// facing breakpoint listings.
	Temp bool

	// TotalHitCount is how many times this breakpoint stopped the target.
	TotalHitCount uint64
}

func (bp *Breakpoint) String() string {
	return fmt.Sprintf("Breakpoint at %#x (enabled=%t)", bp.Addr, bp.Enabled)
}

// BreakpointMap holds the breakpoints for one target process, keyed by
// address. At most one breakpoint exists per address. All mutation happens
// through a MemoryReadWriter while the owning process is stopped; the map
// itself never talks to ptrace directly.
type BreakpointMap struct {
	M map[uint64]*Breakpoint

	arch *Arch
	mem  MemoryReadWriter
}

// NewBreakpointMap creates a new BreakpointMap for a process on the given
// architecture whose memory is accessed through mem.
func NewBreakpointMap(arch *Arch, mem MemoryReadWriter) BreakpointMap {
	return BreakpointMap{
		M:    make(map[uint64]*Breakpoint),
		arch: arch,
		mem:  mem,
	}
}

// Set plants an enabled breakpoint at addr. The original instruction bytes
// are read and saved before the trap instruction is written.
func (bpmap *BreakpointMap) Set(addr uint64) (*Breakpoint, error) {
	if _, ok := bpmap.M[addr]; ok {
		return nil, BreakpointExistsError{Addr: addr}
	}
	bp := &Breakpoint{Addr: addr}
	if err := bpmap.enable(bp); err != nil {
		return nil, err
	}
	bpmap.M[addr] = bp
	return bp, nil
}

// SetTemp plants a one-shot breakpoint, used for continue-to-address style
// operations. If a user breakpoint already exists at addr it is left alone
// and returned instead.
func (bpmap *BreakpointMap) SetTemp(addr uint64) (*Breakpoint, error) {
	if bp, ok := bpmap.M[addr]; ok {
		return bp, nil
	}
	bp := &Breakpoint{Addr: addr, Temp: true}
	if err := bpmap.enable(bp); err != nil {
		return nil, err
	}
	bpmap.M[addr] = bp
	return bp, nil
}

// Clear restores the original bytes at addr and forgets the breakpoint.
func (bpmap *BreakpointMap) Clear(addr uint64) (*Breakpoint, error) {
	bp, ok := bpmap.M[addr]
	if !ok {
		return nil, NoBreakpointError{Addr: addr}
	}
	if err := bpmap.disable(bp); err != nil {
		return nil, err
	}
	delete(bpmap.M, addr)
	return bp, nil
}

// ClearAll restores every breakpoint before teardown or detach. The first
// error is reported but restoration is attempted for all entries.
func (bpmap *BreakpointMap) ClearAll() error {
	var firstErr error
	for addr, bp := range bpmap.M {
		if err := bpmap.disable(bp); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(bpmap.M, addr)
	}
	return firstErr
}

// Has reports whether a breakpoint exists at addr.
func (bpmap *BreakpointMap) Has(addr uint64) bool {
	_, ok := bpmap.M[addr]
	return ok
}

// Get returns the breakpoint at addr, if one exists.
func (bpmap *BreakpointMap) Get(addr uint64) (*Breakpoint, bool) {
	bp, ok := bpmap.M[addr]
	return bp, ok
}

// Enable rewrites the trap instruction for a previously disabled
// breakpoint.
func (bpmap *BreakpointMap) Enable(addr uint64) error {
	bp, ok := bpmap.M[addr]
	if !ok {
		return NoBreakpointError{Addr: addr}
	}
	return bpmap.enable(bp)
}

// Disable restores the original bytes at addr without forgetting them, so
// the breakpoint can be reinstated after being stepped over.
func (bpmap *BreakpointMap) Disable(addr uint64) error {
	bp, ok := bpmap.M[addr]
	if !ok {
		return NoBreakpointError{Addr: addr}
	}
	return bpmap.disable(bp)
}

func (bpmap *BreakpointMap) enable(bp *Breakpoint) error {
	if bp.Enabled {
		return nil
	}
	instr := bpmap.arch.BreakpointInstruction()
	if bp.OriginalData == nil {
		originalData, err := ReadBytes(bpmap.mem, bp.Addr, len(instr))
		if err != nil {
			return err
		}
		// Target text may itself contain a trap instruction, for example
		// linker padding between functions. The bytes are saved as is and
		// disable/clear restore that same pattern.
		bp.OriginalData = originalData
	}
	if _, err := bpmap.mem.WriteMemory(bp.Addr, instr); err != nil {
		return err
	}
	bp.Enabled = true
	return nil
}

func (bpmap *BreakpointMap) disable(bp *Breakpoint) error {
	if !bp.Enabled {
		return nil
	}
	if _, err := bpmap.mem.WriteMemory(bp.Addr, bp.OriginalData); err != nil {
		return fmt.Errorf("could not restore breakpoint at %#x: %w", bp.Addr, err)
	}
	bp.Enabled = false
	return nil
}
