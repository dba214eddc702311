package proc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Registers is an interface for a generic register set. The interface
// encapsulates the values and actions we need independent of architecture;
// the concrete types live in the linutil package. A Registers value is a
// snapshot: it does not change when the target resumes. Writing registers
// goes through the owning process, which writes through to the live thread
// and retakes the snapshot.
type Registers interface {
	PC() uint64
	SP() uint64
	BP() uint64
	// Get returns the value of the named general purpose register.
	Get(name string) (uint64, error)
	// Slice returns the registers as a list of name/value pairs, optionally
	// including the floating point registers.
	Slice(floatingPoint bool) ([]Register, error)
	// Copy returns a copy guaranteed not to alias the ptrace buffers of the
	// associated thread.
	Copy() (Registers, error)
}

// Register represents a single CPU register at a stop point.
type Register struct {
	Name  string
	Bytes []byte
	Value string
}

// Uint64Val returns the register contents as a uint64. Registers wider than
// 64 bits return their low quadword.
func (r *Register) Uint64Val() uint64 {
	var v uint64
	for i := 0; i < len(r.Bytes) && i < 8; i++ {
		v |= uint64(r.Bytes[i]) << (8 * uint(i))
	}
	return v
}

// AppendUint64Register appends a 64 bit register to regs.
func AppendUint64Register(regs []Register, name string, value uint64) []Register {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, value)
	return append(regs, Register{name, buf.Bytes(), fmt.Sprintf("%#016x", value)})
}

// AppendBytesRegister appends a wide register (FP, vector) to regs.
func AppendBytesRegister(regs []Register, name string, value []byte) []Register {
	var sb strings.Builder
	sb.WriteString("0x")
	for i := len(value) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "%02x", value[i])
	}
	return append(regs, Register{name, value, sb.String()})
}

// FindRegister returns the register with the given (case insensitive) name.
func FindRegister(regs []Register, name string) (*Register, bool) {
	for i := range regs {
		if strings.EqualFold(regs[i].Name, name) {
			return &regs[i], true
		}
	}
	return nil, false
}
