package linutil

import (
	"strconv"
	"strings"

	"github.com/debugworks/godbg/pkg/proc"
)

// RISCV64Registers implements the proc.Registers interface on
// linux/riscv64. Only the general purpose register set is exposed.
type RISCV64Registers struct {
	Regs *RISCV64PtraceRegs
}

// NewRISCV64Registers creates a new RISCV64Registers object from a
// PTRACE_GETREGSET NT_PRSTATUS dump.
func NewRISCV64Registers(regs *RISCV64PtraceRegs) *RISCV64Registers {
	return &RISCV64Registers{Regs: regs}
}

// RISCV64PtraceRegs is the struct used by the linux kernel to return the
// general purpose registers for RISCV64 CPUs, struct user_regs_struct.
type RISCV64PtraceRegs struct {
	Pc  uint64
	Ra  uint64
	Sp  uint64
	Gp  uint64
	Tp  uint64
	T0  uint64
	T1  uint64
	T2  uint64
	S0  uint64
	S1  uint64
	A0  uint64
	A1  uint64
	A2  uint64
	A3  uint64
	A4  uint64
	A5  uint64
	A6  uint64
	A7  uint64
	S2  uint64
	S3  uint64
	S4  uint64
	S5  uint64
	S6  uint64
	S7  uint64
	S8  uint64
	S9  uint64
	S10 uint64
	S11 uint64
	T3  uint64
	T4  uint64
	T5  uint64
	T6  uint64
}

// abiSlice maps ABI register indexes x1-x31 onto the kernel struct.
func (r *RISCV64Registers) abiSlice() []*uint64 {
	g := r.Regs
	return []*uint64{
		&g.Ra, &g.Sp, &g.Gp, &g.Tp, &g.T0, &g.T1, &g.T2, &g.S0, &g.S1,
		&g.A0, &g.A1, &g.A2, &g.A3, &g.A4, &g.A5, &g.A6, &g.A7,
		&g.S2, &g.S3, &g.S4, &g.S5, &g.S6, &g.S7, &g.S8, &g.S9, &g.S10, &g.S11,
		&g.T3, &g.T4, &g.T5, &g.T6,
	}
}

var riscv64ABINames = []string{
	"ra", "sp", "gp", "tp", "t0", "t1", "t2", "s0", "s1",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	"t3", "t4", "t5", "t6",
}

// PC returns the current program counter.
func (r *RISCV64Registers) PC() uint64 {
	return r.Regs.Pc
}

// SP returns the stack pointer.
func (r *RISCV64Registers) SP() uint64 {
	return r.Regs.Sp
}

// BP returns S0, the conventional frame pointer.
func (r *RISCV64Registers) BP() uint64 {
	return r.Regs.S0
}

func (r *RISCV64Registers) field(name string) *uint64 {
	if name == "pc" {
		return &r.Regs.Pc
	}
	abi := r.abiSlice()
	for i, n := range riscv64ABINames {
		if n == name {
			return abi[i]
		}
	}
	// xN aliases: x0 is the hardwired zero register and not writable.
	if strings.HasPrefix(name, "x") {
		if n, err := strconv.Atoi(name[1:]); err == nil && n >= 1 && n <= 31 {
			return abi[n-1]
		}
	}
	return nil
}

// Get returns the value of the named register.
func (r *RISCV64Registers) Get(name string) (uint64, error) {
	if p := r.field(name); p != nil {
		return *p, nil
	}
	return 0, proc.UnknownRegisterError{Name: name}
}

// SetReg changes the in-memory value of the named register.
func (r *RISCV64Registers) SetReg(name string, value uint64) error {
	p := r.field(name)
	if p == nil {
		return proc.UnknownRegisterError{Name: name}
	}
	*p = value
	return nil
}

// Slice returns the registers as a list of name/value pairs. Floating
// point registers are not supported on this architecture yet.
func (r *RISCV64Registers) Slice(floatingPoint bool) ([]proc.Register, error) {
	out := make([]proc.Register, 0, 32)
	out = proc.AppendUint64Register(out, "pc", r.Regs.Pc)
	abi := r.abiSlice()
	for i, name := range riscv64ABINames {
		out = proc.AppendUint64Register(out, name, *abi[i])
	}
	return out, nil
}

// Copy returns a copy of these registers that is guaranteed not to change.
func (r *RISCV64Registers) Copy() (proc.Registers, error) {
	var rr RISCV64Registers
	rr.Regs = &RISCV64PtraceRegs{}
	*(rr.Regs) = *(r.Regs)
	return &rr, nil
}
