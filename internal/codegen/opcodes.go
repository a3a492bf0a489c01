package codegen

import (
	"fmt"

	"github.com/iannisdezwart/tea-sub000/internal/asm"
)

// widthIndex maps a byte size to its position (0..3) within the four
// int-width opcode families the emitter lays out in strict 8/16/32/64
// order, mirroring the ~120-entry opcode table's grouping.
func widthIndex(byteSize uint32) int {
	switch byteSize {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	default:
		panic(fmt.Sprintf("internal error: unsupported operand width %d", byteSize))
	}
}

// arithOpcode resolves the ADD/SUB/MUL/DIV family member for a type:
// the four int widths occupy the first four slots of each group, the two
// float widths the following two.
func arithOpcode(intBase asm.Opcode, byteSize uint32, isFloat bool) asm.Opcode {
	if isFloat {
		if byteSize == 4 {
			return intBase + 4
		}
		return intBase + 5
	}
	return intBase + asm.Opcode(widthIndex(byteSize))
}

// intOpcode resolves a purely-integer family member (MOD, AND, OR, XOR,
// SHL, SHR, INC, DEC, NEG) which has exactly one opcode per int width.
func intOpcode(base asm.Opcode, byteSize uint32) asm.Opcode {
	return base + asm.Opcode(widthIndex(byteSize))
}

// loadPtrOpcode / storePtrOpcode resolve LOAD_PTR_W / STORE_PTR_W.
func loadPtrOpcode(byteSize uint32) asm.Opcode {
	return asm.LoadPtr8 + asm.Opcode(widthIndex(byteSize))
}

func storePtrOpcode(byteSize uint32) asm.Opcode {
	return asm.StorePtr8 + asm.Opcode(widthIndex(byteSize))
}

// pushRegOpcode / popRegOpcode resolve PUSH_REG_W / POP_W_INTO_REG.
func pushRegOpcode(byteSize uint32) asm.Opcode {
	return asm.PushReg8 + asm.Opcode(widthIndex(byteSize))
}

func popRegOpcode(byteSize uint32) asm.Opcode {
	return asm.Pop8IntoReg + asm.Opcode(widthIndex(byteSize))
}

// cmpOpcode resolves the CMP_* family: four (signed, unsigned) int pairs
// followed by the two float widths.
func cmpOpcode(byteSize uint32, isFloat, isSigned bool) asm.Opcode {
	if isFloat {
		if byteSize == 4 {
			return asm.CmpFlt32
		}
		return asm.CmpFlt64
	}
	base := asm.CmpInt8 + asm.Opcode(widthIndex(byteSize)*2)
	if !isSigned {
		base++
	}
	return base
}
