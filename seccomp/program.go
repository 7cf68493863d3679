package seccomp

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

// BPF instruction constants.
const (
	bpfLD   = 0x00
	bpfJMP  = 0x05
	bpfRET  = 0x06
	bpfW    = 0x00
	bpfABS  = 0x20
	bpfJEQ  = 0x10
	bpfJSET = 0x40
	bpfK    = 0x00
)

// instruction is one fixed-size BPF instruction: opcode, jump-true offset,
// jump-false offset, immediate constant.
type instruction struct {
	code uint16
	jt   uint8
	jf   uint8
	k    uint32
}

// instructionSize is the serialized size of one instruction in bytes.
const instructionSize = 8

// loadAbs builds an instruction loading a 32-bit word from the given offset
// of the seccomp_data input record into the accumulator.
func loadAbs(off uint32) instruction {
	return instruction{code: bpfLD | bpfW | bpfABS, k: off}
}

// jumpEqual builds a conditional jump taken when the accumulator equals k.
func jumpEqual(k uint32, jt, jf uint8) instruction {
	return instruction{code: bpfJMP | bpfJEQ | bpfK, jt: jt, jf: jf, k: k}
}

// jumpSet builds a conditional jump taken when any bit of k is set in the
// accumulator.
func jumpSet(k uint32, jt, jf uint8) instruction {
	return instruction{code: bpfJMP | bpfJSET | bpfK, jt: jt, jf: jf, k: k}
}

// ret builds an unconditional return with the given seccomp action.
func ret(action uint32) instruction {
	return instruction{code: bpfRET | bpfK, k: action}
}

// Program is a compiled syscall filter for a single architecture. It is
// immutable once synthesized.
type Program struct {
	arch  Arch
	insns []instruction
}

// Arch returns the architecture the program was synthesized for.
func (p *Program) Arch() Arch {
	return p.arch
}

// InstructionCount returns the number of instructions in the program.
func (p *Program) InstructionCount() int {
	return len(p.insns)
}

// ByteLen returns the serialized length: instruction count times the fixed
// 8-byte instruction size.
func (p *Program) ByteLen() int {
	return len(p.insns) * instructionSize
}

// Bytes serializes the program to the flat binary format consumed by the
// namespace backend's filter-loading mechanism: a headerless sequence of
// 8-byte records (opcode u16, jump-true u8, jump-false u8, constant u32),
// little-endian to match the byte order of both supported architectures.
// Length is implicit from the byte count.
func (p *Program) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(p.ByteLen())
	for _, in := range p.insns {
		var rec [instructionSize]byte
		binary.LittleEndian.PutUint16(rec[0:2], in.code)
		rec[2] = in.jt
		rec[3] = in.jf
		binary.LittleEndian.PutUint32(rec[4:8], in.k)
		buf.Write(rec[:])
	}
	return buf.Bytes()
}

// WriteTo writes the serialized program to w.
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}

// WriteFile persists the serialized program to path. The file is written
// read-only for the owner; it is a compiled security artifact, not a
// configuration file.
func (p *Program) WriteFile(path string) error {
	return os.WriteFile(path, p.Bytes(), 0o400)
}
