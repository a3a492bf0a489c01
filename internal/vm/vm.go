// Package vm implements the register-machine CPU that executes a loaded
// exe.Image: the fixed register file, the monotonic byte-addressed stack,
// the greater_flag/equal_flag comparison state, and the fetch-decode-execute
// loop over a 64-bit register machine with a frame-pointer call convention.
package vm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/iannisdezwart/tea-sub000/internal/asm"
	"github.com/iannisdezwart/tea-sub000/internal/exe"
)

// VM is one CPU core: its register file, its byte-addressed memory (static
// data, globals and the call stack share one monotonic address space, with
// static data loaded at the bottom of the stack), and the two comparison
// flags CMP_* writes and SET_IF_*/JUMP_IF_* read.
type VM struct {
	registers [asm.RegisterCount]uint64
	mem       []byte
	program   []byte

	greaterFlag bool
	equalFlag   bool
	// unordered is set only by CMP_FLT_32/64 when either operand is NaN; it
	// exists because greater_flag/equal_flag alone can't tell "a < b" apart
	// from "a and b are unordered" — both leave both named flags clear, but
	// IEEE-754 unordered-compare semantics require JUMP_IF_LT/LEQ/GT/GEQ to
	// come out false while JUMP_IF_NEQ still comes out true.
	unordered bool

	stdout *bufio.Writer
	stdin  *bufio.Reader
}

// New loads img into a fresh VM: static data is copied to the bottom of
// memory, R_STACK_PTR and R_FRAME_PTR are set just above it, and
// R_INSTRUCTION_PTR starts at the first byte of the program region.
func New(img exe.Image) *VM {
	return NewWithIO(img, os.Stdin, os.Stdout)
}

// NewWithIO is New with the PRINT_CHAR/GET_CHAR streams overridden, used by
// tests to capture output without touching the real console.
func NewWithIO(img exe.Image, stdin io.Reader, stdout io.Writer) *VM {
	v := &VM{
		program: img.Program,
		stdout:  bufio.NewWriter(stdout),
		stdin:   bufio.NewReader(stdin),
	}
	v.mem = make([]byte, len(img.StaticData))
	copy(v.mem, img.StaticData)
	base := uint64(len(img.StaticData))
	v.registers[asm.RStackPtr] = base
	v.registers[asm.RFramePtr] = base
	v.registers[asm.RInstructionPtr] = 0
	return v
}

// Register reads one register's full 64-bit content, exposed for tests and
// for a future debugger hook.
func (v *VM) Register(r asm.Register) uint64 { return v.registers[r] }

// RunProgram drives the fetch-decode-execute loop until R_INSTRUCTION_PTR
// leaves the program region, returning the low bits of R_ACCUMULATOR_0 as
// the exit code.
func (v *VM) RunProgram() (exitCode uint64, err error) {
	defer v.stdout.Flush()
	for v.registers[asm.RInstructionPtr] < uint64(len(v.program)) {
		if err := v.step(); err != nil {
			return 0, err
		}
	}
	return v.registers[asm.RAccumulator0], nil
}

// RunProgramDebugMode is RunProgram with a trace line written to w before
// every instruction — the instruction pointer and the two comparison
// flags, enough for a line-oriented debugger to drive single-stepping
// against. It has no breakpoint/stepping UI of its own; an interactive
// debugger shell is a separate concern built against this hook.
func (v *VM) RunProgramDebugMode(w io.Writer) (exitCode uint64, err error) {
	defer v.stdout.Flush()
	for v.registers[asm.RInstructionPtr] < uint64(len(v.program)) {
		fmt.Fprintf(w, "ip=%d gt=%v eq=%v\n",
			v.registers[asm.RInstructionPtr], v.greaterFlag, v.equalFlag)
		if err := v.step(); err != nil {
			return 0, err
		}
	}
	return v.registers[asm.RAccumulator0], nil
}

// ensureMem grows the backing store so addresses up to n are valid,
// zero-filling the newly reserved bytes. Bytes below the old size are
// left as they are, so stack space reused after a pop or a RETURN keeps
// whatever was last written there.
func (v *VM) ensureMem(n uint64) {
	if n <= uint64(len(v.mem)) {
		return
	}
	grown := make([]byte, n)
	copy(grown, v.mem)
	v.mem = grown
}

func (v *VM) readMem(addr uint64, width uint32, ip uint64) (uint64, error) {
	if addr+uint64(width) > uint64(len(v.mem)) {
		return 0, v.fault(ip, ErrOutOfBounds)
	}
	switch width {
	case 1:
		return uint64(v.mem[addr]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(v.mem[addr:])), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(v.mem[addr:])), nil
	default:
		return binary.LittleEndian.Uint64(v.mem[addr:]), nil
	}
}

func (v *VM) writeMem(addr uint64, width uint32, value uint64, ip uint64) error {
	if addr+uint64(width) > uint64(len(v.mem)) {
		return v.fault(ip, ErrOutOfBounds)
	}
	switch width {
	case 1:
		v.mem[addr] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(v.mem[addr:], uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(v.mem[addr:], uint32(value))
	default:
		binary.LittleEndian.PutUint64(v.mem[addr:], value)
	}
	return nil
}

func (v *VM) u8At(off uint64) (uint8, error) {
	if off+1 > uint64(len(v.program)) {
		return 0, v.fault(off, ErrTruncated)
	}
	return v.program[off], nil
}

func (v *VM) u16At(off uint64) (uint16, error) {
	if off+2 > uint64(len(v.program)) {
		return 0, v.fault(off, ErrTruncated)
	}
	return binary.LittleEndian.Uint16(v.program[off:]), nil
}

func (v *VM) u64At(off uint64) (uint64, error) {
	if off+8 > uint64(len(v.program)) {
		return 0, v.fault(off, ErrTruncated)
	}
	return binary.LittleEndian.Uint64(v.program[off:]), nil
}

func (v *VM) i64At(off uint64) (int64, error) {
	u, err := v.u64At(off)
	return int64(u), err
}

// cstringLenAt scans a NUL-terminated string starting at off, returning its
// length including the terminator; COMMENT/LABEL carry one but codegen
// never emits either opcode, so this only matters for a hand-assembled or
// future disassembler-round-tripped program.
func (v *VM) cstringLenAt(off uint64) (int, error) {
	for i := off; i < uint64(len(v.program)); i++ {
		if v.program[i] == 0 {
			return int(i-off) + 1, nil
		}
	}
	return 0, v.fault(off, ErrTruncated)
}

const mask8 = 0xff
const mask16 = 0xffff
const mask32 = 0xffffffff

func widthMask(width uint32) uint64 {
	switch width {
	case 1:
		return mask8
	case 2:
		return mask16
	case 4:
		return mask32
	default:
		return math.MaxUint64
	}
}

// signExtend reinterprets the low `width` bytes of v as a two's-complement
// signed integer of that width, extended to a full int64.
func signExtend(v uint64, width uint32) int64 {
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

// setLow writes `value`'s low `width` bytes into *reg and zeroes
// everything above them. The opcode table has no width-aware cast and no
// signed/unsigned variant of LOAD_PTR or the arithmetic families, so a
// narrower result can only be used correctly by whatever reads the full
// 64-bit register afterwards (CAST_*, pointer arithmetic, RETURN's
// R_ACCUMULATOR_0) if the unused high bits are known to be zero rather
// than left over from the register's previous occupant.
func setLow(reg *uint64, width uint32, value uint64) {
	*reg = value & widthMask(width)
}
