package codegen

import (
	"github.com/iannisdezwart/tea-sub000/internal/asm"
	"github.com/iannisdezwart/tea-sub000/internal/lang"
)

// codeGen lowers a statement-level node. For a bare expression statement
// it allocates a scratch register, computes the value, and discards it.
func (g *Generator) codeGen(idx lang.NodeIndex) error {
	if idx == lang.NilNode {
		return nil
	}
	tag := g.ast.Tags[idx]
	data := g.ast.NodeD[idx]

	switch tag {
	case lang.TagBlock:
		for _, s := range g.ast.Extra(data.Extra) {
			if err := g.codeGen(s); err != nil {
				return err
			}
		}
		return nil

	case lang.TagVarDecl:
		return g.codeGenVarDecl(idx, data)

	case lang.TagIf:
		return g.codeGenIf(idx, data)

	case lang.TagWhile:
		return g.codeGenWhile(idx, data)

	case lang.TagFor:
		return g.codeGenFor(idx, data)

	case lang.TagReturn:
		return g.codeGenReturn(idx, data)

	case lang.TagBreak:
		loop, ok := g.em.CurrentLoop()
		if !ok {
			return errf("break outside any loop")
		}
		g.em.Jump(loop.End)
		return nil

	case lang.TagContinue:
		loop, ok := g.em.CurrentLoop()
		if !ok {
			return errf("continue outside any loop")
		}
		g.em.Jump(loop.Start)
		return nil

	case lang.TagSysCall:
		return g.codeGenSysCall(idx, data)

	case lang.TagExprStatement:
		reg, err := g.getValue(data.Lhs)
		if err != nil {
			return err
		}
		g.em.FreeRegister(reg)
		return nil

	default:
		return errf("internal error: unhandled statement tag %d", tag)
	}
}

func (g *Generator) codeGenVarDecl(idx lang.NodeIndex, data lang.NodeData) error {
	if data.Lhs == lang.NilNode {
		return nil
	}
	if g.ast.Tags[data.Lhs] == lang.TagInitList {
		return g.storeInitList(idx, data.Lhs)
	}
	reg, err := g.getValue(data.Lhs)
	if err != nil {
		return err
	}
	g.applyCast(data.Lhs, reg)
	if err := g.store(idx, reg); err != nil {
		g.em.FreeRegister(reg)
		return err
	}
	g.em.FreeRegister(reg)
	return nil
}

func (g *Generator) condJumpOpcode(condType lang.Type) asm.Opcode {
	byteSize := condType.ByteSize(g.ast.ExtraData, 0)
	isFloat := condType.IsFloat()
	isSigned := condType.IsSigned()
	if condType.PointerDepth(g.ast.ExtraData) > 0 {
		byteSize, isFloat, isSigned = 8, false, false
	}
	return cmpOpcode(byteSize, isFloat, isSigned)
}

// evalConditionIsZero evaluates cond into a register, compares it against
// zero at its own width/signedness/floatness, and leaves the CMP flags
// set for the caller's JUMP_IF_* — the common test step shared by if,
// while and for.
func (g *Generator) evalConditionIsZero(cond lang.NodeIndex) error {
	testReg, err := g.getValue(cond)
	if err != nil {
		return err
	}
	condType := g.ast.Types[cond]
	zeroReg, err := g.moveLitIntoReg(0)
	if err != nil {
		g.em.FreeRegister(testReg)
		return err
	}
	g.em.PushInstruction(g.condJumpOpcode(condType))
	g.em.PushReg(testReg)
	g.em.PushReg(zeroReg)
	g.em.FreeRegister(testReg)
	g.em.FreeRegister(zeroReg)
	return nil
}

func (g *Generator) codeGenIf(idx lang.NodeIndex, data lang.NodeData) error {
	elseLabel := g.em.NewLabel("else")
	endLabel := g.em.NewLabel("end")

	if err := g.evalConditionIsZero(data.Lhs); err != nil {
		return err
	}
	g.em.JumpIf(asm.JumpIfEq, elseLabel)

	if err := g.codeGen(data.Rhs); err != nil {
		return err
	}
	g.em.Jump(endLabel)

	if err := g.em.AddLabel(elseLabel); err != nil {
		return err
	}
	elseStmt := lang.NodeIndex(data.Aux)
	if elseStmt != lang.NilNode {
		if err := g.codeGen(elseStmt); err != nil {
			return err
		}
	}
	return g.em.AddLabel(endLabel)
}

func (g *Generator) codeGenWhile(idx lang.NodeIndex, data lang.NodeData) error {
	startLabel := g.em.NewLabel("wstart")
	endLabel := g.em.NewLabel("wend")

	if err := g.em.AddLabel(startLabel); err != nil {
		return err
	}
	if err := g.evalConditionIsZero(data.Lhs); err != nil {
		return err
	}
	g.em.JumpIf(asm.JumpIfEq, endLabel)

	g.em.PushLoop(startLabel, endLabel)
	err := g.codeGen(data.Rhs)
	g.em.PopLoop()
	if err != nil {
		return err
	}

	g.em.Jump(startLabel)
	return g.em.AddLabel(endLabel)
}

func (g *Generator) codeGenFor(idx lang.NodeIndex, data lang.NodeData) error {
	initNode := lang.NodeIndex(data.Aux)
	updateNode := g.ast.Extra(data.Extra)[0]

	if err := g.codeGen(initNode); err != nil {
		return err
	}

	// The update expression is evaluated right before the back-jump, so
	// it must run on every iteration including the one continue jumps to
	// — give continue its own label distinct from the test, bound right
	// before the update.
	testLabel := g.em.NewLabel("fortest")
	continueLabel := g.em.NewLabel("forcont")
	endLabel := g.em.NewLabel("forend")

	if err := g.em.AddLabel(testLabel); err != nil {
		return err
	}
	if data.Lhs != lang.NilNode {
		if err := g.evalConditionIsZero(data.Lhs); err != nil {
			return err
		}
		g.em.JumpIf(asm.JumpIfEq, endLabel)
	}

	g.em.PushLoop(continueLabel, endLabel)
	err := g.codeGen(data.Rhs)
	g.em.PopLoop()
	if err != nil {
		return err
	}

	if err := g.em.AddLabel(continueLabel); err != nil {
		return err
	}
	if updateNode != lang.NilNode {
		reg, err := g.getValue(updateNode)
		if err != nil {
			return err
		}
		g.em.FreeRegister(reg)
	}
	g.em.Jump(testLabel)
	return g.em.AddLabel(endLabel)
}

func (g *Generator) codeGenReturn(idx lang.NodeIndex, data lang.NodeData) error {
	if data.Lhs == lang.NilNode {
		g.em.PushInstruction(asm.Return)
		return nil
	}
	reg, err := g.getValue(data.Lhs)
	if err != nil {
		return err
	}
	g.applyCast(data.Lhs, reg)
	g.em.PushInstruction(asm.Move)
	g.em.PushReg(reg)
	g.em.PushReg(asm.RAccumulator0)
	g.em.FreeRegister(reg)
	g.em.PushInstruction(asm.Return)
	return nil
}

func (g *Generator) codeGenSysCall(idx lang.NodeIndex, data lang.NodeData) error {
	args := g.ast.Extra(data.Extra)
	switch lang.SysCallKind(data.Aux) {
	case lang.SysCallPrintChar:
		reg, err := g.getValue(args[0])
		if err != nil {
			return err
		}
		g.em.PushInstruction(asm.PrintChar)
		g.em.PushReg(reg)
		g.em.FreeRegister(reg)
		return nil

	case lang.SysCallGetChar:
		ptrReg, err := g.getValue(args[0])
		if err != nil {
			return err
		}
		charReg, err := g.em.GetRegister()
		if err != nil {
			g.em.FreeRegister(ptrReg)
			return err
		}
		g.em.PushInstruction(asm.GetChar)
		g.em.PushReg(charReg)
		g.em.PushInstruction(asm.StorePtr16)
		g.em.PushReg(charReg)
		g.em.PushReg(ptrReg)
		g.em.FreeRegister(ptrReg)
		g.em.FreeRegister(charReg)
		return nil

	default:
		return errf("internal error: unhandled syscall kind %d", data.Aux)
	}
}
