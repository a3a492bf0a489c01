package codegen

import (
	"github.com/iannisdezwart/tea-sub000/internal/asm"
	"github.com/iannisdezwart/tea-sub000/internal/lang"
)

// elemByteSize is the storage size of whatever a pointer type points to one
// level down, used to scale pointer arithmetic and ++/-- on pointers by the
// stride of the pointed-to size.
func (g *Generator) elemByteSize(t lang.Type) uint32 {
	pt := t.PointedType(&g.ast.ExtraData)
	return pt.StorageSize(g.ast.ExtraData)
}

// addrForBinding resolves a name binding to the register holding its
// absolute address: locals and params are frame-relative, globals sit at
// a compile-time-constant absolute offset past the static-data region.
func (g *Generator) addrForBinding(b lang.Binding) (asm.Register, error) {
	switch b.Kind {
	case lang.BindLocal:
		return g.addImmediate(asm.RFramePtr, int64(b.Offset))
	case lang.BindParam:
		imm := int64(b.Offset) - int64(frameHeaderSize) - int64(g.paramsSize)
		return g.addImmediate(asm.RFramePtr, imm)
	case lang.BindGlobal:
		return g.moveLitIntoReg(g.globalBase + uint64(b.Offset))
	default:
		return 0, errf("internal error: binding kind %d has no address", b.Kind)
	}
}

// lvalueAddr computes the absolute address of any assignable expression:
// a name, a member access, an array offset, or a pointer dereference.
func (g *Generator) lvalueAddr(idx lang.NodeIndex) (asm.Register, error) {
	tag := g.ast.Tags[idx]
	data := g.ast.NodeD[idx]

	switch tag {
	case lang.TagIdentifier, lang.TagVarDecl:
		return g.addrForBinding(g.ast.Bindings[idx])

	case lang.TagScopeResolve:
		return g.lvalueAddr(data.Rhs)

	case lang.TagDotMember:
		base, err := g.lvalueAddr(data.Lhs)
		if err != nil {
			return 0, err
		}
		offset := g.ast.Bindings[idx].Offset
		addr, err := g.addImmediate(base, int64(offset))
		g.em.FreeRegister(base)
		return addr, err

	case lang.TagArrowMember:
		base, err := g.getValue(data.Lhs)
		if err != nil {
			return 0, err
		}
		offset := g.ast.Bindings[idx].Offset
		addr, err := g.addImmediate(base, int64(offset))
		g.em.FreeRegister(base)
		return addr, err

	case lang.TagOffset:
		base, err := g.getValue(data.Lhs)
		if err != nil {
			return 0, err
		}
		indexReg, err := g.getValue(data.Rhs)
		if err != nil {
			g.em.FreeRegister(base)
			return 0, err
		}
		elemSize := g.ast.Types[idx].StorageSize(g.ast.ExtraData)
		sizeReg, err := g.moveLitIntoReg(uint64(elemSize))
		if err != nil {
			g.em.FreeRegister(base)
			g.em.FreeRegister(indexReg)
			return 0, err
		}
		g.em.PushInstruction(asm.MulInt64)
		g.em.PushReg(indexReg)
		g.em.PushReg(sizeReg)
		g.em.FreeRegister(sizeReg)

		g.em.PushInstruction(asm.AddInt64)
		g.em.PushReg(indexReg)
		g.em.PushReg(base)
		g.em.FreeRegister(base)
		return indexReg, nil

	case lang.TagDeref:
		return g.getValue(data.Lhs)

	case lang.TagPreInc, lang.TagPreDec:
		// Assigning through a prefix ++/-- applies the update first, then
		// stores into the updated operand's own location.
		reg, err := g.genIncDec(data, tag == lang.TagPreInc, false)
		if err != nil {
			return 0, err
		}
		g.em.FreeRegister(reg)
		return g.lvalueAddr(data.Lhs)

	default:
		return 0, errf("internal error: node tag %d is not an lvalue", tag)
	}
}

// loadFromLvalue computes idx's address and, unless idx names a class
// instance (which is always passed around by address) or an array
// (which decays to the address of its first element), loads its value
// into a fresh register.
func (g *Generator) loadFromLvalue(idx lang.NodeIndex) (asm.Register, error) {
	t := g.ast.Types[idx]
	extraData := g.ast.ExtraData
	addr, err := g.lvalueAddr(idx)
	if err != nil {
		return 0, err
	}
	if t.IsClass(extraData) || t.IsArray(extraData) {
		return addr, nil
	}
	width := t.ByteSize(extraData, 0)
	dst, err := g.em.GetRegister()
	if err != nil {
		g.em.FreeRegister(addr)
		return 0, err
	}
	g.em.PushInstruction(loadPtrOpcode(width))
	g.em.PushReg(addr)
	g.em.PushReg(dst)
	g.em.FreeRegister(addr)
	return dst, nil
}

// store writes src into idx's storage location, using a whole-instance
// MEM_COPY when idx names a class value (src then holds an address, same
// convention getValue uses for class-typed reads) and a width-sized
// STORE_PTR otherwise.
func (g *Generator) store(idx lang.NodeIndex, src asm.Register) error {
	t := g.ast.Types[idx]
	extraData := g.ast.ExtraData
	addr, err := g.lvalueAddr(idx)
	if err != nil {
		return err
	}
	if t.IsClass(extraData) {
		size := t.StorageSize(extraData)
		g.em.PushInstruction(asm.MemCopy)
		g.em.PushReg(src)
		g.em.PushReg(addr)
		g.em.PushLit64(uint64(size))
		g.em.FreeRegister(addr)
		return nil
	}
	width := t.ByteSize(extraData, 0)
	g.em.PushInstruction(storePtrOpcode(width))
	g.em.PushReg(src)
	g.em.PushReg(addr)
	g.em.FreeRegister(addr)
	return nil
}

// getValue is the expression visitor: it computes idx's value into a
// freshly allocated register (or, for a class-typed expression, the
// address of the instance) and returns it for the caller to consume and
// free.
func (g *Generator) getValue(idx lang.NodeIndex) (asm.Register, error) {
	tag := g.ast.Tags[idx]
	data := g.ast.NodeD[idx]

	switch tag {
	case lang.TagLiteralInt, lang.TagLiteralChar:
		return g.moveLitIntoReg(g.ast.IntLiterals[data.Aux])

	case lang.TagLiteralFloat:
		return g.moveLitIntoReg(float64Bits(g.ast.FloatLiterals[data.Aux]))

	case lang.TagLiteralString:
		return g.moveLitIntoReg(g.stringAddrs[data.Aux])

	case lang.TagIdentifier, lang.TagDotMember, lang.TagArrowMember, lang.TagOffset, lang.TagDeref:
		return g.loadFromLvalue(idx)

	case lang.TagScopeResolve:
		return g.getValue(data.Rhs)

	case lang.TagAdd, lang.TagSub:
		return g.genAddSub(idx, data, tag)

	case lang.TagMul, lang.TagDiv:
		return g.genArith(idx, data, tag)

	case lang.TagMod, lang.TagShl, lang.TagShr, lang.TagBitAnd, lang.TagBitXor, lang.TagBitOr:
		return g.genIntBinary(idx, data, tag)

	case lang.TagLess, lang.TagLessEq, lang.TagGreater, lang.TagGreaterEq, lang.TagEqual, lang.TagNotEqual:
		return g.genCompare(idx, data, tag)

	case lang.TagLogAnd:
		return g.genLogAnd(data)

	case lang.TagLogOr:
		return g.genLogOr(data)

	case lang.TagUnaryPlus:
		return g.getValue(data.Lhs)

	case lang.TagUnaryNeg:
		return g.genUnaryNeg(idx, data)

	case lang.TagBitNot:
		return g.genBitNot(idx, data)

	case lang.TagLogNot:
		return g.genLogNot(idx, data)

	case lang.TagAddrOf:
		return g.lvalueAddr(data.Lhs)

	case lang.TagPreInc:
		return g.genIncDec(data, true, false)
	case lang.TagPreDec:
		return g.genIncDec(data, false, false)
	case lang.TagPostInc:
		return g.genIncDec(data, true, true)
	case lang.TagPostDec:
		return g.genIncDec(data, false, true)

	case lang.TagCall:
		return g.genCall(idx, data)

	case lang.TagCast:
		return g.genCast(idx, data)

	case lang.TagAssign, lang.TagAddAssign, lang.TagSubAssign, lang.TagMulAssign, lang.TagDivAssign,
		lang.TagModAssign, lang.TagShlAssign, lang.TagShrAssign, lang.TagAndAssign, lang.TagXorAssign,
		lang.TagOrAssign:
		return g.genAssign(idx, data, tag)

	case lang.TagInitList:
		return 0, errf("internal error: init list is only valid as a declaration initializer")

	default:
		return 0, errf("internal error: unhandled expression tag %d", tag)
	}
}

func (g *Generator) genAddSub(idx lang.NodeIndex, data lang.NodeData, tag lang.Tag) (asm.Register, error) {
	extraData := g.ast.ExtraData
	lt := g.ast.Types[data.Lhs]
	rt := g.ast.Types[data.Rhs]

	switch {
	case lt.PointerDepth(extraData) > 0 && rt.PointerDepth(extraData) > 0:
		lhsReg, err := g.getValue(data.Lhs)
		if err != nil {
			return 0, err
		}
		rhsReg, err := g.getValue(data.Rhs)
		if err != nil {
			g.em.FreeRegister(lhsReg)
			return 0, err
		}
		g.em.PushInstruction(asm.SubInt64)
		g.em.PushReg(lhsReg)
		g.em.PushReg(rhsReg)
		g.em.FreeRegister(rhsReg)

		sizeReg, err := g.moveLitIntoReg(uint64(g.elemByteSize(lt)))
		if err != nil {
			g.em.FreeRegister(lhsReg)
			return 0, err
		}
		g.em.PushInstruction(asm.DivInt64)
		g.em.PushReg(lhsReg)
		g.em.PushReg(sizeReg)
		g.em.FreeRegister(sizeReg)
		return lhsReg, nil

	case lt.PointerDepth(extraData) > 0 && rt.IsInteger():
		return g.genPointerOffset(data.Lhs, data.Rhs, lt, tag)

	case rt.PointerDepth(extraData) > 0 && lt.IsInteger() && tag == lang.TagAdd:
		return g.genPointerOffset(data.Rhs, data.Lhs, rt, tag)

	default:
		return g.genArith(idx, data, tag)
	}
}

// genPointerOffset lowers `ptr + n` / `ptr - n`, scaling n by the pointed
// type's storage size before combining it with the pointer value.
func (g *Generator) genPointerOffset(ptrNode, idxNode lang.NodeIndex, ptrType lang.Type, tag lang.Tag) (asm.Register, error) {
	ptrReg, err := g.getValue(ptrNode)
	if err != nil {
		return 0, err
	}
	idxReg, err := g.getValue(idxNode)
	if err != nil {
		g.em.FreeRegister(ptrReg)
		return 0, err
	}
	sizeReg, err := g.moveLitIntoReg(uint64(g.elemByteSize(ptrType)))
	if err != nil {
		g.em.FreeRegister(ptrReg)
		g.em.FreeRegister(idxReg)
		return 0, err
	}
	g.em.PushInstruction(asm.MulInt64)
	g.em.PushReg(idxReg)
	g.em.PushReg(sizeReg)
	g.em.FreeRegister(sizeReg)

	op := asm.AddInt64
	if tag == lang.TagSub {
		op = asm.SubInt64
	}
	g.em.PushInstruction(op)
	g.em.PushReg(ptrReg)
	g.em.PushReg(idxReg)
	g.em.FreeRegister(idxReg)
	return ptrReg, nil
}

func arithBase(tag lang.Tag) asm.Opcode {
	switch tag {
	case lang.TagAdd:
		return asm.AddInt8
	case lang.TagSub:
		return asm.SubInt8
	case lang.TagMul:
		return asm.MulInt8
	case lang.TagDiv:
		return asm.DivInt8
	default:
		panic("internal error: not an arithmetic tag")
	}
}

func (g *Generator) genArith(idx lang.NodeIndex, data lang.NodeData, tag lang.Tag) (asm.Register, error) {
	lhsReg, err := g.getValue(data.Lhs)
	if err != nil {
		return 0, err
	}
	g.applyCast(data.Lhs, lhsReg)
	rhsReg, err := g.getValue(data.Rhs)
	if err != nil {
		g.em.FreeRegister(lhsReg)
		return 0, err
	}
	g.applyCast(data.Rhs, rhsReg)

	resultType := g.ast.Types[idx]
	op := arithOpcode(arithBase(tag), resultType.ByteSize(g.ast.ExtraData, 0), resultType.IsFloat())
	g.em.PushInstruction(op)
	g.em.PushReg(lhsReg)
	g.em.PushReg(rhsReg)
	g.em.FreeRegister(rhsReg)
	return lhsReg, nil
}

func intBinaryBase(tag lang.Tag) asm.Opcode {
	switch tag {
	case lang.TagMod:
		return asm.ModInt8
	case lang.TagShl:
		return asm.ShlInt8
	case lang.TagShr:
		return asm.ShrInt8
	case lang.TagBitAnd:
		return asm.AndInt8
	case lang.TagBitXor:
		return asm.XorInt8
	case lang.TagBitOr:
		return asm.OrInt8
	default:
		panic("internal error: not an integer-binary tag")
	}
}

func (g *Generator) genIntBinary(idx lang.NodeIndex, data lang.NodeData, tag lang.Tag) (asm.Register, error) {
	lhsReg, err := g.getValue(data.Lhs)
	if err != nil {
		return 0, err
	}
	rhsReg, err := g.getValue(data.Rhs)
	if err != nil {
		g.em.FreeRegister(lhsReg)
		return 0, err
	}
	resultType := g.ast.Types[idx]
	op := intOpcode(intBinaryBase(tag), resultType.ByteSize(g.ast.ExtraData, 0))
	g.em.PushInstruction(op)
	g.em.PushReg(lhsReg)
	g.em.PushReg(rhsReg)
	g.em.FreeRegister(rhsReg)
	return lhsReg, nil
}

func setIfOp(tag lang.Tag) asm.Opcode {
	switch tag {
	case lang.TagLess:
		return asm.SetIfLt
	case lang.TagLessEq:
		return asm.SetIfLeq
	case lang.TagGreater:
		return asm.SetIfGt
	case lang.TagGreaterEq:
		return asm.SetIfGeq
	case lang.TagEqual:
		return asm.SetIfEq
	case lang.TagNotEqual:
		return asm.SetIfNeq
	default:
		panic("internal error: not a relational tag")
	}
}

// operandCmpShape picks the width/signedness/floatness a comparison
// between two operand types should run at: pointers always compare as
// unsigned 64-bit; a float operand forces a float compare at the float
// side's width (the checker records an int-to-float cast on the other
// operand); otherwise the wider of the two int widths, signed if either
// side is.
func operandCmpShape(lt, rt lang.Type, extraData []uint32) (width uint32, isFloat, isSigned bool) {
	if lt.PointerDepth(extraData) > 0 || rt.PointerDepth(extraData) > 0 {
		return 8, false, false
	}
	if lt.IsFloat() || rt.IsFloat() {
		width = 4
		if (lt.IsFloat() && lt.Size == 8) || (rt.IsFloat() && rt.Size == 8) {
			width = 8
		}
		return width, true, false
	}
	width = lt.ByteSize(extraData, 0)
	if rt.ByteSize(extraData, 0) > width {
		width = rt.ByteSize(extraData, 0)
	}
	isSigned = lt.IsSigned() || rt.IsSigned()
	return
}

func (g *Generator) genCompare(idx lang.NodeIndex, data lang.NodeData, tag lang.Tag) (asm.Register, error) {
	lhsReg, err := g.getValue(data.Lhs)
	if err != nil {
		return 0, err
	}
	g.applyCast(data.Lhs, lhsReg)
	rhsReg, err := g.getValue(data.Rhs)
	if err != nil {
		g.em.FreeRegister(lhsReg)
		return 0, err
	}
	g.applyCast(data.Rhs, rhsReg)
	width, isFloat, isSigned := operandCmpShape(g.ast.Types[data.Lhs], g.ast.Types[data.Rhs], g.ast.ExtraData)
	g.em.PushInstruction(cmpOpcode(width, isFloat, isSigned))
	g.em.PushReg(lhsReg)
	g.em.PushReg(rhsReg)
	g.em.FreeRegister(rhsReg)

	g.em.PushInstruction(setIfOp(tag))
	g.em.PushReg(lhsReg)
	return lhsReg, nil
}

// jumpIfFalsy/jumpIfTruthy evaluate node, compare it against zero and
// branch to label on the named outcome, freeing the scratch registers
// either way — the building block for short-circuit && / ||.
func (g *Generator) jumpIfFalsy(node lang.NodeIndex, label string) error {
	return g.jumpOnZeroTest(node, label, asm.JumpIfEq)
}

func (g *Generator) jumpIfTruthy(node lang.NodeIndex, label string) error {
	return g.jumpOnZeroTest(node, label, asm.JumpIfNeq)
}

func (g *Generator) jumpOnZeroTest(node lang.NodeIndex, label string, branch asm.Opcode) error {
	reg, err := g.getValue(node)
	if err != nil {
		return err
	}
	zero, err := g.moveLitIntoReg(0)
	if err != nil {
		g.em.FreeRegister(reg)
		return err
	}
	g.em.PushInstruction(g.condJumpOpcode(g.ast.Types[node]))
	g.em.PushReg(reg)
	g.em.PushReg(zero)
	g.em.FreeRegister(reg)
	g.em.FreeRegister(zero)
	g.em.JumpIf(branch, label)
	return nil
}

func (g *Generator) genLogAnd(data lang.NodeData) (asm.Register, error) {
	resultReg, err := g.em.GetRegister()
	if err != nil {
		return 0, err
	}
	falseLabel := g.em.NewLabel("land_f")
	endLabel := g.em.NewLabel("land_e")

	if err := g.jumpIfFalsy(data.Lhs, falseLabel); err != nil {
		return 0, err
	}
	if err := g.jumpIfFalsy(data.Rhs, falseLabel); err != nil {
		return 0, err
	}
	if err := g.setBoolAndJump(resultReg, 1, endLabel); err != nil {
		return 0, err
	}
	if err := g.em.AddLabel(falseLabel); err != nil {
		return 0, err
	}
	if err := g.setBoolAndJump(resultReg, 0, ""); err != nil {
		return 0, err
	}
	if err := g.em.AddLabel(endLabel); err != nil {
		return 0, err
	}
	return resultReg, nil
}

func (g *Generator) genLogOr(data lang.NodeData) (asm.Register, error) {
	resultReg, err := g.em.GetRegister()
	if err != nil {
		return 0, err
	}
	trueLabel := g.em.NewLabel("lor_t")
	falseLabel := g.em.NewLabel("lor_f")
	endLabel := g.em.NewLabel("lor_e")

	if err := g.jumpIfTruthy(data.Lhs, trueLabel); err != nil {
		return 0, err
	}
	if err := g.jumpIfTruthy(data.Rhs, trueLabel); err != nil {
		return 0, err
	}
	g.em.Jump(falseLabel)

	if err := g.em.AddLabel(trueLabel); err != nil {
		return 0, err
	}
	if err := g.setBoolAndJump(resultReg, 1, endLabel); err != nil {
		return 0, err
	}
	if err := g.em.AddLabel(falseLabel); err != nil {
		return 0, err
	}
	if err := g.setBoolAndJump(resultReg, 0, ""); err != nil {
		return 0, err
	}
	if err := g.em.AddLabel(endLabel); err != nil {
		return 0, err
	}
	return resultReg, nil
}

// setBoolAndJump moves a 0/1 literal into dst and, if jumpLabel is
// non-empty, jumps there immediately after.
func (g *Generator) setBoolAndJump(dst asm.Register, v uint64, jumpLabel string) error {
	lit, err := g.moveLitIntoReg(v)
	if err != nil {
		return err
	}
	g.em.PushInstruction(asm.Move)
	g.em.PushReg(lit)
	g.em.PushReg(dst)
	g.em.FreeRegister(lit)
	if jumpLabel != "" {
		g.em.Jump(jumpLabel)
	}
	return nil
}

func (g *Generator) genUnaryNeg(idx lang.NodeIndex, data lang.NodeData) (asm.Register, error) {
	reg, err := g.getValue(data.Lhs)
	if err != nil {
		return 0, err
	}
	t := g.ast.Types[idx]
	width := t.ByteSize(g.ast.ExtraData, 0)
	if t.IsFloat() {
		zero, err := g.moveLitIntoReg(0)
		if err != nil {
			g.em.FreeRegister(reg)
			return 0, err
		}
		g.em.PushInstruction(arithOpcode(asm.SubInt8, width, true))
		g.em.PushReg(zero)
		g.em.PushReg(reg)
		g.em.FreeRegister(reg)
		return zero, nil
	}
	g.em.PushInstruction(intOpcode(asm.NegInt8, width))
	g.em.PushReg(reg)
	return reg, nil
}

func (g *Generator) genBitNot(idx lang.NodeIndex, data lang.NodeData) (asm.Register, error) {
	reg, err := g.getValue(data.Lhs)
	if err != nil {
		return 0, err
	}
	width := g.ast.Types[idx].ByteSize(g.ast.ExtraData, 0)
	allOnes, err := g.moveLitIntoReg(^uint64(0))
	if err != nil {
		g.em.FreeRegister(reg)
		return 0, err
	}
	g.em.PushInstruction(intOpcode(asm.XorInt8, width))
	g.em.PushReg(reg)
	g.em.PushReg(allOnes)
	g.em.FreeRegister(allOnes)
	return reg, nil
}

func (g *Generator) genLogNot(idx lang.NodeIndex, data lang.NodeData) (asm.Register, error) {
	reg, err := g.getValue(data.Lhs)
	if err != nil {
		return 0, err
	}
	zero, err := g.moveLitIntoReg(0)
	if err != nil {
		g.em.FreeRegister(reg)
		return 0, err
	}
	g.em.PushInstruction(g.condJumpOpcode(g.ast.Types[data.Lhs]))
	g.em.PushReg(reg)
	g.em.PushReg(zero)
	g.em.FreeRegister(zero)
	g.em.PushInstruction(asm.SetIfEq)
	g.em.PushReg(reg)
	return reg, nil
}

func (g *Generator) genIncDec(data lang.NodeData, isInc, isPost bool) (asm.Register, error) {
	addr, err := g.lvalueAddr(data.Lhs)
	if err != nil {
		return 0, err
	}
	t := g.ast.Types[data.Lhs]
	extraData := g.ast.ExtraData
	width := t.ByteSize(extraData, 0)

	cur, err := g.em.GetRegister()
	if err != nil {
		g.em.FreeRegister(addr)
		return 0, err
	}
	g.em.PushInstruction(loadPtrOpcode(width))
	g.em.PushReg(addr)
	g.em.PushReg(cur)

	var origReg asm.Register
	if isPost {
		origReg, err = g.em.GetRegister()
		if err != nil {
			g.em.FreeRegister(addr)
			g.em.FreeRegister(cur)
			return 0, err
		}
		g.em.PushInstruction(asm.Move)
		g.em.PushReg(cur)
		g.em.PushReg(origReg)
	}

	stride := uint32(1)
	if t.PointerDepth(extraData) > 0 {
		stride = g.elemByteSize(t)
	}
	if stride == 1 {
		base := asm.IncInt8
		if !isInc {
			base = asm.DecInt8
		}
		g.em.PushInstruction(intOpcode(base, width))
		g.em.PushReg(cur)
	} else {
		strideReg, err := g.moveLitIntoReg(uint64(stride))
		if err != nil {
			g.em.FreeRegister(addr)
			g.em.FreeRegister(cur)
			return 0, err
		}
		op := asm.AddInt64
		if !isInc {
			op = asm.SubInt64
		}
		g.em.PushInstruction(op)
		g.em.PushReg(cur)
		g.em.PushReg(strideReg)
		g.em.FreeRegister(strideReg)
	}

	g.em.PushInstruction(storePtrOpcode(width))
	g.em.PushReg(cur)
	g.em.PushReg(addr)
	g.em.FreeRegister(addr)

	if isPost {
		g.em.FreeRegister(cur)
		return origReg, nil
	}
	return cur, nil
}

// genCall lowers a function call: each argument is evaluated and pushed
// left to right in declaration order, then the caller-supplied
// argument-block size, then CALL; the result is copied out of
// R_ACCUMULATOR_0 into a fresh register.
func (g *Generator) genCall(idx lang.NodeIndex, data lang.NodeData) (asm.Register, error) {
	nameID := uint32(data.Aux)
	info, ok := g.chk.FunctionByID(nameID)
	if !ok {
		return 0, errf("internal error: call to unresolved function %q", g.ast.IdentName(nameID))
	}
	args := g.ast.Extra(data.Extra)

	var totalSize uint32
	for i, a := range args {
		reg, err := g.getValue(a)
		if err != nil {
			return 0, err
		}
		g.applyCast(a, reg)
		pType := info.Params[i].Type
		if pType.IsClass(g.ast.ExtraData) {
			// A class argument is passed by value: reserve its slot on the
			// stack and copy the whole instance in (reg holds its address,
			// the class-read convention getValue uses).
			size := pType.StorageSize(g.ast.ExtraData)
			slot, err := g.em.GetRegister()
			if err != nil {
				g.em.FreeRegister(reg)
				return 0, err
			}
			g.em.PushInstruction(asm.Move)
			g.em.PushReg(asm.RStackPtr)
			g.em.PushReg(slot)
			g.em.PushInstruction(asm.AllocateStack)
			g.em.PushLit64(uint64(size))
			g.em.PushInstruction(asm.MemCopy)
			g.em.PushReg(reg)
			g.em.PushReg(slot)
			g.em.PushLit64(uint64(size))
			g.em.FreeRegister(slot)
			g.em.FreeRegister(reg)
			totalSize += size
			continue
		}
		pWidth := pType.ByteSize(g.ast.ExtraData, 0)
		g.em.PushInstruction(pushRegOpcode(pWidth))
		g.em.PushReg(reg)
		g.em.FreeRegister(reg)
		totalSize += pWidth
	}

	sizeReg, err := g.moveLitIntoReg(uint64(totalSize))
	if err != nil {
		return 0, err
	}
	g.em.PushInstruction(asm.PushReg64)
	g.em.PushReg(sizeReg)
	g.em.FreeRegister(sizeReg)

	g.em.Call(g.ast.IdentName(nameID))

	dst, err := g.em.GetRegister()
	if err != nil {
		return 0, err
	}
	g.em.PushInstruction(asm.Move)
	g.em.PushReg(asm.RAccumulator0)
	g.em.PushReg(dst)
	return dst, nil
}

func (g *Generator) genCast(idx lang.NodeIndex, data lang.NodeData) (asm.Register, error) {
	reg, err := g.getValue(data.Lhs)
	if err != nil {
		return 0, err
	}
	srcType := g.ast.Types[data.Lhs]
	dstType := g.ast.TypeRef(data.Aux)

	switch {
	case srcType.IsInteger() && dstType.IsFloat():
		op := asm.CastIntToFlt32
		if dstType.Size == 8 {
			op = asm.CastIntToFlt64
		}
		g.em.PushInstruction(op)
		g.em.PushReg(reg)
	case srcType.IsFloat() && dstType.IsInteger():
		op := asm.CastFlt32ToInt
		if srcType.Size == 8 {
			op = asm.CastFlt64ToInt
		}
		g.em.PushInstruction(op)
		g.em.PushReg(reg)
	}
	return reg, nil
}

func compoundAssignOp(tag lang.Tag, width uint32, isFloat bool) asm.Opcode {
	switch tag {
	case lang.TagAddAssign:
		return arithOpcode(asm.AddInt8, width, isFloat)
	case lang.TagSubAssign:
		return arithOpcode(asm.SubInt8, width, isFloat)
	case lang.TagMulAssign:
		return arithOpcode(asm.MulInt8, width, isFloat)
	case lang.TagDivAssign:
		return arithOpcode(asm.DivInt8, width, isFloat)
	case lang.TagModAssign:
		return intOpcode(asm.ModInt8, width)
	case lang.TagShlAssign:
		return intOpcode(asm.ShlInt8, width)
	case lang.TagShrAssign:
		return intOpcode(asm.ShrInt8, width)
	case lang.TagAndAssign:
		return intOpcode(asm.AndInt8, width)
	case lang.TagXorAssign:
		return intOpcode(asm.XorInt8, width)
	case lang.TagOrAssign:
		return intOpcode(asm.OrInt8, width)
	default:
		panic("internal error: not a compound-assignment tag")
	}
}

func (g *Generator) genAssign(idx lang.NodeIndex, data lang.NodeData, tag lang.Tag) (asm.Register, error) {
	if tag == lang.TagAssign {
		rhsReg, err := g.getValue(data.Rhs)
		if err != nil {
			return 0, err
		}
		g.applyCast(idx, rhsReg)
		if err := g.store(data.Lhs, rhsReg); err != nil {
			g.em.FreeRegister(rhsReg)
			return 0, err
		}
		return rhsReg, nil
	}

	addr, err := g.lvalueAddr(data.Lhs)
	if err != nil {
		return 0, err
	}
	t := g.ast.Types[data.Lhs]
	width := t.ByteSize(g.ast.ExtraData, 0)

	cur, err := g.em.GetRegister()
	if err != nil {
		g.em.FreeRegister(addr)
		return 0, err
	}
	g.em.PushInstruction(loadPtrOpcode(width))
	g.em.PushReg(addr)
	g.em.PushReg(cur)

	rhsReg, err := g.getValue(data.Rhs)
	if err != nil {
		g.em.FreeRegister(addr)
		g.em.FreeRegister(cur)
		return 0, err
	}
	g.applyCast(idx, rhsReg)

	g.em.PushInstruction(compoundAssignOp(tag, width, t.IsFloat()))
	g.em.PushReg(cur)
	g.em.PushReg(rhsReg)
	g.em.FreeRegister(rhsReg)

	g.em.PushInstruction(storePtrOpcode(width))
	g.em.PushReg(cur)
	g.em.PushReg(addr)
	g.em.FreeRegister(addr)
	return cur, nil
}

// storeInitList lowers a brace initializer attached to a declaration
// (local or global) into a sequence of field/element stores at declIdx's
// address, recursing into nested brace initializers for multi-dimensional
// arrays or class-typed fields.
func (g *Generator) storeInitList(declIdx, listIdx lang.NodeIndex) error {
	addr, err := g.lvalueAddr(declIdx)
	if err != nil {
		return err
	}
	err = g.storeInitListAt(addr, g.ast.Types[declIdx], listIdx)
	g.em.FreeRegister(addr)
	return err
}

func (g *Generator) storeInitListAt(addr asm.Register, t lang.Type, listIdx lang.NodeIndex) error {
	extraData := g.ast.ExtraData
	elems := g.ast.Extra(g.ast.NodeD[listIdx].Extra)

	if t.IsClass(extraData) {
		info, ok := g.chk.ClassByID(t.Value)
		if !ok {
			return errf("internal error: unknown class in initializer")
		}
		for i, e := range elems {
			if i >= len(info.Fields) {
				break
			}
			field := info.Fields[i]
			slot, err := g.addImmediate(addr, int64(field.Offset))
			if err != nil {
				return err
			}
			if err := g.storeInitElem(slot, field.Type, e); err != nil {
				g.em.FreeRegister(slot)
				return err
			}
			g.em.FreeRegister(slot)
		}
		return nil
	}

	elemType := t
	if t.PointerDepth(extraData) > 0 {
		elemType = t.PointedType(&g.ast.ExtraData)
	}
	elemSize := elemType.StorageSize(g.ast.ExtraData)
	for i, e := range elems {
		slot, err := g.addImmediate(addr, int64(uint32(i)*elemSize))
		if err != nil {
			return err
		}
		if err := g.storeInitElem(slot, elemType, e); err != nil {
			g.em.FreeRegister(slot)
			return err
		}
		g.em.FreeRegister(slot)
	}
	return nil
}

func (g *Generator) storeInitElem(slot asm.Register, elemType lang.Type, e lang.NodeIndex) error {
	if g.ast.Tags[e] == lang.TagInitList {
		return g.storeInitListAt(slot, elemType, e)
	}
	val, err := g.getValue(e)
	if err != nil {
		return err
	}
	g.applyCast(e, val)
	width := elemType.ByteSize(g.ast.ExtraData, 0)
	g.em.PushInstruction(storePtrOpcode(width))
	g.em.PushReg(val)
	g.em.PushReg(slot)
	g.em.FreeRegister(val)
	return nil
}
