package proc

import "fmt"

// Arch represents a CPU architecture. The rest of the debugger never
// branches on architecture directly; everything it needs to know is
// captured here and selected once when the target process is created.
type Arch struct {
	Name string

	ptrSize               int
	breakpointInstruction []byte
	// breakInstrMovesPC is true if hitting the breakpoint instruction
	// advances the instruction counter by the size of the breakpoint
	// instruction.
	breakInstrMovesPC bool
	// registerNames lists the general purpose registers readable and
	// writable by name through the Registers interface, in display order.
	registerNames []string
}

// PtrSize returns the size of a pointer for this architecture.
func (a *Arch) PtrSize() int {
	return a.ptrSize
}

// BreakpointInstruction returns the trap instruction sequence used for
// software breakpoints.
func (a *Arch) BreakpointInstruction() []byte {
	return a.breakpointInstruction
}

// BreakpointSize returns the size of the trap instruction.
func (a *Arch) BreakpointSize() int {
	return len(a.breakpointInstruction)
}

// BreakInstrMovesPC reports whether executing the trap instruction leaves
// the program counter after the trap, requiring the stop address to be
// rewound to find the breakpoint that was hit.
func (a *Arch) BreakInstrMovesPC() bool {
	return a.breakInstrMovesPC
}

// RegisterNames returns the names of the general purpose registers.
func (a *Arch) RegisterNames() []string {
	names := make([]string, len(a.registerNames))
	copy(names, a.registerNames)
	return names
}

// 0xCC, INT 3
var amd64BreakInstruction = []byte{0xCC}

// BRK #0
var arm64BreakInstruction = []byte{0x00, 0x00, 0x20, 0xd4}

// c.ebreak
var riscv64BreakInstruction = []byte{0x02, 0x90}

// AMD64Arch returns an initialized AMD64 architecture description.
func AMD64Arch() *Arch {
	return &Arch{
		Name:                  "amd64",
		ptrSize:               8,
		breakpointInstruction: amd64BreakInstruction,
		breakInstrMovesPC:     true,
		registerNames: []string{
			"rip", "rsp", "rax", "rbx", "rcx", "rdx", "rdi", "rsi", "rbp",
			"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
			"rflags", "cs", "ss", "fs_base", "gs_base", "ds", "es", "fs", "gs",
		},
	}
}

// ARM64Arch returns an initialized ARM64 architecture description.
// Support is partial: general purpose registers only.
func ARM64Arch() *Arch {
	names := make([]string, 0, 34)
	for i := 0; i < 31; i++ {
		names = append(names, fmt.Sprintf("x%d", i))
	}
	names = append(names, "sp", "pc", "pstate")
	return &Arch{
		Name:                  "arm64",
		ptrSize:               8,
		breakpointInstruction: arm64BreakInstruction,
		breakInstrMovesPC:     false,
		registerNames:         names,
	}
}

// RISCV64Arch returns an initialized RISCV64 architecture description.
// Support is partial: general purpose registers only. The compressed
// c.ebreak encoding is used so that breakpoints can be planted on
// compressed instructions too.
func RISCV64Arch() *Arch {
	names := []string{
		"pc", "ra", "sp", "gp", "tp", "t0", "t1", "t2", "s0", "s1",
		"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
		"s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
		"t3", "t4", "t5", "t6",
	}
	return &Arch{
		Name:                  "riscv64",
		ptrSize:               8,
		breakpointInstruction: riscv64BreakInstruction,
		breakInstrMovesPC:     false,
		registerNames:         names,
	}
}

// ArchFromGOARCH maps a GOARCH value to its architecture description.
func ArchFromGOARCH(goarch string) (*Arch, error) {
	switch goarch {
	case "amd64":
		return AMD64Arch(), nil
	case "arm64":
		return ARM64Arch(), nil
	case "riscv64":
		return RISCV64Arch(), nil
	}
	return nil, fmt.Errorf("unsupported architecture %q", goarch)
}
