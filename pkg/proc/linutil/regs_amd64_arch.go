package linutil

import (
	"fmt"

	"github.com/debugworks/godbg/pkg/proc"
)

// AMD64Registers implements the proc.Registers interface on linux/amd64.
type AMD64Registers struct {
	Regs   *AMD64PtraceRegs
	Fpregs []proc.Register

	loadFpRegs func(*AMD64Registers) error
}

// NewAMD64Registers creates a new AMD64Registers object from a ptrace GP
// register dump. loadFpRegs is called lazily the first time the floating
// point registers are requested.
func NewAMD64Registers(regs *AMD64PtraceRegs, loadFpRegs func(*AMD64Registers) error) *AMD64Registers {
	return &AMD64Registers{Regs: regs, loadFpRegs: loadFpRegs}
}

// AMD64PtraceRegs is the struct used by the linux kernel to return the
// general purpose registers for AMD64 CPUs.
type AMD64PtraceRegs struct {
	R15      uint64
	R14      uint64
	R13      uint64
	R12      uint64
	Rbp      uint64
	Rbx      uint64
	R11      uint64
	R10      uint64
	R9       uint64
	R8       uint64
	Rax      uint64
	Rcx      uint64
	Rdx      uint64
	Rsi      uint64
	Rdi      uint64
	Orig_rax uint64
	Rip      uint64
	Cs       uint64
	Eflags   uint64
	Rsp      uint64
	Ss       uint64
	Fs_base  uint64
	Gs_base  uint64
	Ds       uint64
	Es       uint64
	Fs       uint64
	Gs       uint64
}

// PC returns the value of the RIP register.
func (r *AMD64Registers) PC() uint64 {
	return r.Regs.Rip
}

// SP returns the value of the RSP register.
func (r *AMD64Registers) SP() uint64 {
	return r.Regs.Rsp
}

// BP returns the value of the RBP register.
func (r *AMD64Registers) BP() uint64 {
	return r.Regs.Rbp
}

// field returns a pointer to the named general purpose register, or nil.
func (r *AMD64Registers) field(name string) *uint64 {
	switch name {
	case "rip":
		return &r.Regs.Rip
	case "rsp":
		return &r.Regs.Rsp
	case "rax":
		return &r.Regs.Rax
	case "rbx":
		return &r.Regs.Rbx
	case "rcx":
		return &r.Regs.Rcx
	case "rdx":
		return &r.Regs.Rdx
	case "rdi":
		return &r.Regs.Rdi
	case "rsi":
		return &r.Regs.Rsi
	case "rbp":
		return &r.Regs.Rbp
	case "r8":
		return &r.Regs.R8
	case "r9":
		return &r.Regs.R9
	case "r10":
		return &r.Regs.R10
	case "r11":
		return &r.Regs.R11
	case "r12":
		return &r.Regs.R12
	case "r13":
		return &r.Regs.R13
	case "r14":
		return &r.Regs.R14
	case "r15":
		return &r.Regs.R15
	case "orig_rax":
		return &r.Regs.Orig_rax
	case "rflags", "eflags":
		return &r.Regs.Eflags
	case "cs":
		return &r.Regs.Cs
	case "ss":
		return &r.Regs.Ss
	case "fs_base":
		return &r.Regs.Fs_base
	case "gs_base":
		return &r.Regs.Gs_base
	case "ds":
		return &r.Regs.Ds
	case "es":
		return &r.Regs.Es
	case "fs":
		return &r.Regs.Fs
	case "gs":
		return &r.Regs.Gs
	}
	return nil
}

// Get returns the value of the named register.
func (r *AMD64Registers) Get(name string) (uint64, error) {
	if p := r.field(name); p != nil {
		return *p, nil
	}
	return 0, proc.UnknownRegisterError{Name: name}
}

// SetReg changes the in-memory value of the named register. The caller is
// responsible for writing the modified register set back to the thread.
func (r *AMD64Registers) SetReg(name string, value uint64) error {
	p := r.field(name)
	if p == nil {
		return proc.UnknownRegisterError{Name: name}
	}
	*p = value
	return nil
}

// Slice returns the registers as a list of name/value pairs.
func (r *AMD64Registers) Slice(floatingPoint bool) ([]proc.Register, error) {
	var regs = []struct {
		k string
		v uint64
	}{
		{"rip", r.Regs.Rip},
		{"rsp", r.Regs.Rsp},
		{"rax", r.Regs.Rax},
		{"rbx", r.Regs.Rbx},
		{"rcx", r.Regs.Rcx},
		{"rdx", r.Regs.Rdx},
		{"rdi", r.Regs.Rdi},
		{"rsi", r.Regs.Rsi},
		{"rbp", r.Regs.Rbp},
		{"r8", r.Regs.R8},
		{"r9", r.Regs.R9},
		{"r10", r.Regs.R10},
		{"r11", r.Regs.R11},
		{"r12", r.Regs.R12},
		{"r13", r.Regs.R13},
		{"r14", r.Regs.R14},
		{"r15", r.Regs.R15},
		{"rflags", r.Regs.Eflags},
		{"cs", r.Regs.Cs},
		{"ss", r.Regs.Ss},
		{"fs_base", r.Regs.Fs_base},
		{"gs_base", r.Regs.Gs_base},
		{"ds", r.Regs.Ds},
		{"es", r.Regs.Es},
		{"fs", r.Regs.Fs},
		{"gs", r.Regs.Gs},
	}
	out := make([]proc.Register, 0, len(regs)+len(r.Fpregs))
	for _, reg := range regs {
		out = proc.AppendUint64Register(out, reg.k, reg.v)
	}
	var floatLoadError error
	if floatingPoint {
		if r.loadFpRegs != nil {
			floatLoadError = r.loadFpRegs(r)
			r.loadFpRegs = nil
		}
		out = append(out, r.Fpregs...)
	}
	return out, floatLoadError
}

// Copy returns a copy of these registers that is guaranteed not to change.
func (r *AMD64Registers) Copy() (proc.Registers, error) {
	if r.loadFpRegs != nil {
		err := r.loadFpRegs(r)
		r.loadFpRegs = nil
		if err != nil {
			return nil, err
		}
	}
	var rr AMD64Registers
	rr.Regs = &AMD64PtraceRegs{}
	*(rr.Regs) = *(r.Regs)
	if r.Fpregs != nil {
		rr.Fpregs = make([]proc.Register, len(r.Fpregs))
		copy(rr.Fpregs, r.Fpregs)
	}
	return &rr, nil
}

// AMD64PtraceFpRegs tracks the kernel's user_fpregs_struct, the FXSAVE
// area returned by PTRACE_GETFPREGS.
type AMD64PtraceFpRegs struct {
	Cwd      uint16
	Swd      uint16
	Ftw      uint16
	Fop      uint16
	Rip      uint64
	Rdp      uint64
	Mxcsr    uint32
	MxcrMask uint32
	StSpace  [32]uint32
	XmmSpace [256]byte
	Padding  [24]uint32
}

// Decode converts the FXSAVE area to a list of named registers.
func (fpregs *AMD64PtraceFpRegs) Decode() []proc.Register {
	var regs []proc.Register
	for i := 0; i < len(fpregs.StSpace); i += 4 {
		st := make([]byte, 10)
		for j := 0; j < 10; j++ {
			st[j] = byte(fpregs.StSpace[i+j/4] >> uint((j%4)*8))
		}
		regs = proc.AppendBytesRegister(regs, fmt.Sprintf("st%d", i/4), st)
	}
	regs = proc.AppendUint64Register(regs, "mxcsr", uint64(fpregs.Mxcsr))
	for i := 0; i < len(fpregs.XmmSpace); i += 16 {
		xmm := make([]byte, 16)
		copy(xmm, fpregs.XmmSpace[i:i+16])
		regs = proc.AppendBytesRegister(regs, fmt.Sprintf("xmm%d", i/16), xmm)
	}
	return regs
}
