package linutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/debugworks/godbg/pkg/proc"
)

// ARM64Registers implements the proc.Registers interface on linux/arm64.
// Only the general purpose register set is exposed.
type ARM64Registers struct {
	Regs *ARM64PtraceRegs
}

// NewARM64Registers creates a new ARM64Registers object from a
// PTRACE_GETREGSET NT_PRSTATUS dump.
func NewARM64Registers(regs *ARM64PtraceRegs) *ARM64Registers {
	return &ARM64Registers{Regs: regs}
}

// ARM64PtraceRegs is the struct used by the linux kernel to return the
// general purpose registers for ARM64 CPUs, struct user_pt_regs.
type ARM64PtraceRegs struct {
	Regs   [31]uint64
	Sp     uint64
	Pc     uint64
	Pstate uint64
}

// PC returns the current program counter.
func (r *ARM64Registers) PC() uint64 {
	return r.Regs.Pc
}

// SP returns the stack pointer.
func (r *ARM64Registers) SP() uint64 {
	return r.Regs.Sp
}

// BP returns the value of X29, the conventional frame pointer.
func (r *ARM64Registers) BP() uint64 {
	return r.Regs.Regs[29]
}

func (r *ARM64Registers) field(name string) *uint64 {
	switch name {
	case "sp":
		return &r.Regs.Sp
	case "pc":
		return &r.Regs.Pc
	case "pstate":
		return &r.Regs.Pstate
	case "fp":
		return &r.Regs.Regs[29]
	case "lr":
		return &r.Regs.Regs[30]
	}
	if strings.HasPrefix(name, "x") {
		if n, err := strconv.Atoi(name[1:]); err == nil && n >= 0 && n < 31 {
			return &r.Regs.Regs[n]
		}
	}
	return nil
}

// Get returns the value of the named register.
func (r *ARM64Registers) Get(name string) (uint64, error) {
	if p := r.field(name); p != nil {
		return *p, nil
	}
	return 0, proc.UnknownRegisterError{Name: name}
}

// SetReg changes the in-memory value of the named register.
func (r *ARM64Registers) SetReg(name string, value uint64) error {
	p := r.field(name)
	if p == nil {
		return proc.UnknownRegisterError{Name: name}
	}
	*p = value
	return nil
}

// Slice returns the registers as a list of name/value pairs. Floating
// point registers are not supported on this architecture yet.
func (r *ARM64Registers) Slice(floatingPoint bool) ([]proc.Register, error) {
	out := make([]proc.Register, 0, 34)
	for i, v := range r.Regs.Regs {
		out = proc.AppendUint64Register(out, fmt.Sprintf("x%d", i), v)
	}
	out = proc.AppendUint64Register(out, "sp", r.Regs.Sp)
	out = proc.AppendUint64Register(out, "pc", r.Regs.Pc)
	out = proc.AppendUint64Register(out, "pstate", r.Regs.Pstate)
	return out, nil
}

// Copy returns a copy of these registers that is guaranteed not to change.
func (r *ARM64Registers) Copy() (proc.Registers, error) {
	var rr ARM64Registers
	rr.Regs = &ARM64PtraceRegs{}
	*(rr.Regs) = *(r.Regs)
	return &rr, nil
}
