package vm

import (
	"io"
	"math"

	"github.com/iannisdezwart/tea-sub000/internal/asm"
)

// step decodes and executes one instruction: fetch the opcode, dispatch
// on it, advance R_INSTRUCTION_PTR. It returns the fault directly rather
// than recording a sticky error field, since there is no surrounding
// REPL to poll it.
func (v *VM) step() error {
	instrStart := v.registers[asm.RInstructionPtr]
	ip := instrStart

	opU16, err := v.u16At(ip)
	if err != nil {
		return err
	}
	ip += 2
	op := asm.Opcode(opU16)
	if !op.Valid() {
		return v.fault(instrStart, ErrUnknownOpcode)
	}

	readReg := func() (asm.Register, error) {
		b, err := v.u8At(ip)
		ip++
		return asm.Register(b), err
	}
	readLit64 := func() (uint64, error) {
		b, err := v.u64At(ip)
		ip += 8
		return b, err
	}
	readRel := func() (int64, error) {
		b, err := v.i64At(ip)
		ip += 8
		return b, err
	}

	// branchTo resolves a relative displacement the way the assembler's
	// fix-up formula expects: the assembler wrote
	// label_offset - reference_site + 2, where reference_site is the
	// byte right after the opcode, so the runtime target is simply
	// instrStart + displacement. A target past the program region is a
	// fault, except for the end-of-program address itself, which is the
	// normal halt condition.
	branchTo := func(disp int64) (uint64, error) {
		target := uint64(int64(instrStart) + disp)
		if target > uint64(len(v.program)) {
			return 0, v.fault(instrStart, ErrBadJumpTarget)
		}
		return target, nil
	}

	switch op {
	case asm.Jump:
		disp, err := readRel()
		if err != nil {
			return err
		}
		target, err := branchTo(disp)
		if err != nil {
			return err
		}
		v.registers[asm.RInstructionPtr] = target
		return nil

	case asm.JumpIfGt, asm.JumpIfGeq, asm.JumpIfLt, asm.JumpIfLeq, asm.JumpIfEq, asm.JumpIfNeq:
		disp, err := readRel()
		if err != nil {
			return err
		}
		if v.condTrue(op) {
			target, err := branchTo(disp)
			if err != nil {
				return err
			}
			v.registers[asm.RInstructionPtr] = target
		} else {
			v.registers[asm.RInstructionPtr] = ip
		}
		return nil

	case asm.Call:
		disp, err := readRel()
		if err != nil {
			return err
		}
		target, err := branchTo(disp)
		if err != nil {
			return err
		}
		returnAddr := ip
		if err := v.pushStack(8, returnAddr, instrStart); err != nil {
			return err
		}
		if err := v.pushStack(8, v.registers[asm.RFramePtr], instrStart); err != nil {
			return err
		}
		v.registers[asm.RFramePtr] = v.registers[asm.RStackPtr]
		v.registers[asm.RInstructionPtr] = target
		return nil

	case asm.Return:
		v.registers[asm.RStackPtr] = v.registers[asm.RFramePtr]
		oldFP, err := v.popStack(8, instrStart)
		if err != nil {
			return err
		}
		retAddr, err := v.popStack(8, instrStart)
		if err != nil {
			return err
		}
		argBlockSize, err := v.popStack(8, instrStart)
		if err != nil {
			return err
		}
		if retAddr > uint64(len(v.program)) {
			return v.fault(instrStart, ErrBadJumpTarget)
		}
		if v.registers[asm.RStackPtr] < argBlockSize {
			return v.fault(instrStart, ErrOutOfBounds)
		}
		v.registers[asm.RStackPtr] -= argBlockSize
		v.registers[asm.RFramePtr] = oldFP
		v.registers[asm.RInstructionPtr] = retAddr
		return nil
	}

	switch {
	case op == asm.MoveLit:
		lit, err := readLit64()
		if err != nil {
			return err
		}
		dst, err := readReg()
		if err != nil {
			return err
		}
		v.registers[dst] = lit

	case op == asm.Move:
		src, err := readReg()
		if err != nil {
			return err
		}
		dst, err := readReg()
		if err != nil {
			return err
		}
		v.registers[dst] = v.registers[src]

	case op >= asm.LoadPtr8 && op <= asm.LoadPtr64:
		width := ptrFamilyWidth(op, asm.LoadPtr8)
		addr, err := readReg()
		if err != nil {
			return err
		}
		dst, err := readReg()
		if err != nil {
			return err
		}
		val, err := v.readMem(v.registers[addr], width, instrStart)
		if err != nil {
			return err
		}
		setLow(&v.registers[dst], width, val)

	case op >= asm.StorePtr8 && op <= asm.StorePtr64:
		width := ptrFamilyWidth(op, asm.StorePtr8)
		src, err := readReg()
		if err != nil {
			return err
		}
		addr, err := readReg()
		if err != nil {
			return err
		}
		if err := v.writeMem(v.registers[addr], width, getLow(v.registers[src], width), instrStart); err != nil {
			return err
		}

	case op == asm.MemCopy:
		srcReg, err := readReg()
		if err != nil {
			return err
		}
		dstReg, err := readReg()
		if err != nil {
			return err
		}
		size, err := readLit64()
		if err != nil {
			return err
		}
		dstAddr, srcAddr := v.registers[dstReg], v.registers[srcReg]
		if dstAddr+size > uint64(len(v.mem)) || srcAddr+size > uint64(len(v.mem)) {
			return v.fault(instrStart, ErrOutOfBounds)
		}
		copy(v.mem[dstAddr:dstAddr+size], v.mem[srcAddr:srcAddr+size])

	case (op >= asm.AddInt8 && op <= asm.AddFlt64) ||
		(op >= asm.SubInt8 && op <= asm.SubFlt64) ||
		(op >= asm.MulInt8 && op <= asm.MulFlt64) ||
		(op >= asm.DivInt8 && op <= asm.DivFlt64):
		if err := v.execArith(op, instrStart, readReg); err != nil {
			return err
		}

	case op >= asm.ModInt8 && op <= asm.ModInt64:
		width := intFamilyWidth(op, asm.ModInt8)
		dst, src, err := readRegPair(readReg)
		if err != nil {
			return err
		}
		b := getLow(v.registers[src], width)
		if b == 0 {
			return v.fault(instrStart, ErrDivByZero)
		}
		a := getLow(v.registers[dst], width)
		setLow(&v.registers[dst], width, a%b)

	case op >= asm.AndInt8 && op <= asm.AndInt64:
		width := intFamilyWidth(op, asm.AndInt8)
		dst, src, err := readRegPair(readReg)
		if err != nil {
			return err
		}
		setLow(&v.registers[dst], width, getLow(v.registers[dst], width)&getLow(v.registers[src], width))

	case op >= asm.OrInt8 && op <= asm.OrInt64:
		width := intFamilyWidth(op, asm.OrInt8)
		dst, src, err := readRegPair(readReg)
		if err != nil {
			return err
		}
		setLow(&v.registers[dst], width, getLow(v.registers[dst], width)|getLow(v.registers[src], width))

	case op >= asm.XorInt8 && op <= asm.XorInt64:
		width := intFamilyWidth(op, asm.XorInt8)
		dst, src, err := readRegPair(readReg)
		if err != nil {
			return err
		}
		setLow(&v.registers[dst], width, getLow(v.registers[dst], width)^getLow(v.registers[src], width))

	case op >= asm.ShlInt8 && op <= asm.ShlInt64:
		width := intFamilyWidth(op, asm.ShlInt8)
		dst, src, err := readRegPair(readReg)
		if err != nil {
			return err
		}
		shift := getLow(v.registers[src], width)
		setLow(&v.registers[dst], width, shiftLeft(getLow(v.registers[dst], width), shift))

	case op >= asm.ShrInt8 && op <= asm.ShrInt64:
		width := intFamilyWidth(op, asm.ShrInt8)
		dst, src, err := readRegPair(readReg)
		if err != nil {
			return err
		}
		shift := getLow(v.registers[src], width)
		setLow(&v.registers[dst], width, shiftRight(getLow(v.registers[dst], width), shift))

	case op >= asm.IncInt8 && op <= asm.IncInt64:
		width := intFamilyWidth(op, asm.IncInt8)
		reg, err := readReg()
		if err != nil {
			return err
		}
		setLow(&v.registers[reg], width, getLow(v.registers[reg], width)+1)

	case op >= asm.DecInt8 && op <= asm.DecInt64:
		width := intFamilyWidth(op, asm.DecInt8)
		reg, err := readReg()
		if err != nil {
			return err
		}
		setLow(&v.registers[reg], width, getLow(v.registers[reg], width)-1)

	case op >= asm.NegInt8 && op <= asm.NegInt64:
		width := intFamilyWidth(op, asm.NegInt8)
		reg, err := readReg()
		if err != nil {
			return err
		}
		a := getLow(v.registers[reg], width)
		setLow(&v.registers[reg], width, (^a+1)&widthMask(width))

	case op == asm.CastIntToFlt32:
		reg, err := readReg()
		if err != nil {
			return err
		}
		f := float32(int64(v.registers[reg]))
		setLow(&v.registers[reg], 4, uint64(math.Float32bits(f)))

	case op == asm.CastIntToFlt64:
		reg, err := readReg()
		if err != nil {
			return err
		}
		f := float64(int64(v.registers[reg]))
		v.registers[reg] = math.Float64bits(f)

	case op == asm.CastFlt32ToInt:
		reg, err := readReg()
		if err != nil {
			return err
		}
		f := math.Float32frombits(uint32(v.registers[reg]))
		v.registers[reg] = uint64(int64(f))

	case op == asm.CastFlt64ToInt:
		reg, err := readReg()
		if err != nil {
			return err
		}
		f := math.Float64frombits(v.registers[reg])
		v.registers[reg] = uint64(int64(f))

	case (op >= asm.CmpInt8 && op <= asm.CmpInt64U) || op == asm.CmpFlt32 || op == asm.CmpFlt64:
		lhs, rhs, err := readRegPair(readReg)
		if err != nil {
			return err
		}
		v.execCompare(op, v.registers[lhs], v.registers[rhs])

	case op >= asm.SetIfGt && op <= asm.SetIfNeq:
		reg, err := readReg()
		if err != nil {
			return err
		}
		val := uint64(0)
		if v.condTrue(op) {
			val = 1
		}
		v.registers[reg] = val

	case op >= asm.PushReg8 && op <= asm.PushReg64:
		width := ptrFamilyWidth(op, asm.PushReg8)
		reg, err := readReg()
		if err != nil {
			return err
		}
		if err := v.pushStack(width, getLow(v.registers[reg], width), instrStart); err != nil {
			return err
		}

	case op >= asm.Pop8IntoReg && op <= asm.Pop64IntoReg:
		width := ptrFamilyWidth(op, asm.Pop8IntoReg)
		reg, err := readReg()
		if err != nil {
			return err
		}
		val, err := v.popStack(width, instrStart)
		if err != nil {
			return err
		}
		setLow(&v.registers[reg], width, val)

	case op == asm.AllocateStack:
		n, err := readLit64()
		if err != nil {
			return err
		}
		newSP := v.registers[asm.RStackPtr] + n
		v.ensureMem(newSP)
		v.registers[asm.RStackPtr] = newSP

	case op == asm.DeallocateStack:
		n, err := readLit64()
		if err != nil {
			return err
		}
		if v.registers[asm.RStackPtr] < n {
			return v.fault(instrStart, ErrOutOfBounds)
		}
		v.registers[asm.RStackPtr] -= n

	case op == asm.Comment || op == asm.Label:
		n, err := v.cstringLenAt(ip)
		if err != nil {
			return err
		}
		ip += uint64(n)

	case op == asm.PrintChar:
		reg, err := readReg()
		if err != nil {
			return err
		}
		if err := v.stdout.WriteByte(byte(v.registers[reg])); err != nil {
			return v.fault(instrStart, ErrIO)
		}

	case op == asm.GetChar:
		reg, err := readReg()
		if err != nil {
			return err
		}
		b, err := v.stdin.ReadByte()
		if err != nil {
			if err == io.EOF {
				v.registers[reg] = 0
			} else {
				return v.fault(instrStart, ErrIO)
			}
		} else {
			v.registers[reg] = uint64(b)
		}

	default:
		return v.fault(instrStart, ErrUnknownOpcode)
	}

	v.registers[asm.RInstructionPtr] = ip
	return nil
}

func readRegPair(readReg func() (asm.Register, error)) (a, b asm.Register, err error) {
	a, err = readReg()
	if err != nil {
		return
	}
	b, err = readReg()
	return
}

// getLow reads the low `width` bytes of reg, the read-side counterpart of
// setLow.
func getLow(reg uint64, width uint32) uint64 {
	return reg & widthMask(width)
}

func shiftLeft(a, shift uint64) uint64 {
	if shift >= 64 {
		return 0
	}
	return a << shift
}

func shiftRight(a, shift uint64) uint64 {
	if shift >= 64 {
		return 0
	}
	return a >> shift
}

// execArith dispatches the ADD/SUB/MUL/DIV families: four int widths
// followed by flt32/flt64, per arithWidth's decoding. There is no signed
// DIV_INT_W opcode, so integer division and the pointer-difference/offset
// arithmetic codegen builds on top of it are always unsigned — matching
// the opcode table, which only ever gives CMP a signed/unsigned choice.
func (v *VM) execArith(op asm.Opcode, instrStart uint64, readReg func() (asm.Register, error)) error {
	var base asm.Opcode
	switch {
	case op >= asm.AddInt8 && op <= asm.AddFlt64:
		base = asm.AddInt8
	case op >= asm.SubInt8 && op <= asm.SubFlt64:
		base = asm.SubInt8
	case op >= asm.MulInt8 && op <= asm.MulFlt64:
		base = asm.MulInt8
	default:
		base = asm.DivInt8
	}
	width, isFloat := arithWidth(op, base)

	dst, src, err := readRegPair(readReg)
	if err != nil {
		return err
	}

	if isFloat {
		if width == 4 {
			a := math.Float32frombits(uint32(v.registers[dst]))
			b := math.Float32frombits(uint32(v.registers[src]))
			var r float32
			switch base {
			case asm.AddInt8:
				r = a + b
			case asm.SubInt8:
				r = a - b
			case asm.MulInt8:
				r = a * b
			default:
				r = a / b
			}
			v.registers[dst] = uint64(math.Float32bits(r))
		} else {
			a := math.Float64frombits(v.registers[dst])
			b := math.Float64frombits(v.registers[src])
			var r float64
			switch base {
			case asm.AddInt8:
				r = a + b
			case asm.SubInt8:
				r = a - b
			case asm.MulInt8:
				r = a * b
			default:
				r = a / b
			}
			v.registers[dst] = math.Float64bits(r)
		}
		return nil
	}

	a := getLow(v.registers[dst], width)
	b := getLow(v.registers[src], width)
	var r uint64
	switch base {
	case asm.AddInt8:
		r = a + b
	case asm.SubInt8:
		r = a - b
	case asm.MulInt8:
		r = a * b
	default:
		if b == 0 {
			return v.fault(instrStart, ErrDivByZero)
		}
		r = a / b
	}
	setLow(&v.registers[dst], width, r)
	return nil
}

// execCompare implements the CMP_* family: it sets greaterFlag/equalFlag
// (and, for the float forms, unordered on a NaN operand) by comparing lhs
// against rhs, leaving the result for the next SET_IF_*/JUMP_IF_* to read.
func (v *VM) execCompare(op asm.Opcode, lhs, rhs uint64) {
	width, isFloat, isSigned := cmpShape(op)

	if isFloat {
		var a, b float64
		if width == 4 {
			a = float64(math.Float32frombits(uint32(lhs)))
			b = float64(math.Float32frombits(uint32(rhs)))
		} else {
			a = math.Float64frombits(lhs)
			b = math.Float64frombits(rhs)
		}
		if math.IsNaN(a) || math.IsNaN(b) {
			v.greaterFlag, v.equalFlag, v.unordered = false, false, true
			return
		}
		v.greaterFlag, v.equalFlag, v.unordered = a > b, a == b, false
		return
	}

	v.unordered = false
	if isSigned {
		a, b := signExtend(getLow(lhs, width), width), signExtend(getLow(rhs, width), width)
		v.greaterFlag, v.equalFlag = a > b, a == b
		return
	}
	a, b := getLow(lhs, width), getLow(rhs, width)
	v.greaterFlag, v.equalFlag = a > b, a == b
}

// condKind distinguishes the six SET_IF_*/JUMP_IF_* outcomes, shared by
// both opcode families since they're laid out in the same Gt/Geq/Lt/
// Leq/Eq/Neq order.
type condKind int

const (
	condGt condKind = iota
	condGeq
	condLt
	condLeq
	condEq
	condNeq
)

func setIfKind(op asm.Opcode) condKind  { return condKind(op - asm.SetIfGt) }
func jumpIfKind(op asm.Opcode) condKind { return condKind(op - asm.JumpIfGt) }

// condTrue evaluates one of the six named conditions against the current
// flags. A NaN comparison (unordered) makes every ordered relation false
// and NEQ true, matching IEEE-754 unordered-compare semantics.
func (v *VM) condTrue(op asm.Opcode) bool {
	var kind condKind
	if op >= asm.SetIfGt && op <= asm.SetIfNeq {
		kind = setIfKind(op)
	} else {
		kind = jumpIfKind(op)
	}
	if v.unordered {
		return kind == condNeq
	}
	switch kind {
	case condGt:
		return v.greaterFlag
	case condGeq:
		return v.greaterFlag || v.equalFlag
	case condLt:
		return !v.greaterFlag && !v.equalFlag
	case condLeq:
		return !v.greaterFlag
	case condEq:
		return v.equalFlag
	default: // condNeq
		return !v.equalFlag
	}
}

// pushStack writes value's low `width` bytes at the current stack
// pointer, growing memory as needed, and advances R_STACK_PTR — the
// common tail of PUSH_REG_W and CALL's return-address/frame-pointer
// pushes.
func (v *VM) pushStack(width uint32, value, ip uint64) error {
	sp := v.registers[asm.RStackPtr]
	v.ensureMem(sp + uint64(width))
	if err := v.writeMem(sp, width, value, ip); err != nil {
		return err
	}
	v.registers[asm.RStackPtr] = sp + uint64(width)
	return nil
}

// popStack retreats R_STACK_PTR by width bytes and reads the value left
// there — the common tail of POP_W_INTO_REG and RETURN's frame teardown.
func (v *VM) popStack(width uint32, ip uint64) (uint64, error) {
	sp := v.registers[asm.RStackPtr]
	if sp < uint64(width) {
		return 0, v.fault(ip, ErrOutOfBounds)
	}
	sp -= uint64(width)
	val, err := v.readMem(sp, width, ip)
	if err != nil {
		return 0, err
	}
	v.registers[asm.RStackPtr] = sp
	return val, nil
}
