package vm

import "github.com/iannisdezwart/tea-sub000/internal/asm"

// widthFromIndex inverts codegen's widthIndex: the four int-width opcode
// families are always laid out 8/16/32/64 in that order.
func widthFromIndex(i int) uint32 {
	return [4]uint32{1, 2, 4, 8}[i]
}

// arithWidth decodes an ADD/SUB/MUL/DIV-family opcode (four int widths
// followed by flt32, flt64) relative to its family's int8 member.
func arithWidth(op, base asm.Opcode) (width uint32, isFloat bool) {
	offset := int(op - base)
	if offset < 4 {
		return widthFromIndex(offset), false
	}
	if offset == 4 {
		return 4, true
	}
	return 8, true
}

// intFamilyWidth decodes a pure-integer four-wide family (MOD, AND, OR,
// XOR, SHL, SHR, INC, DEC, NEG) relative to its int8 member.
func intFamilyWidth(op, base asm.Opcode) uint32 {
	return widthFromIndex(int(op - base))
}

// cmpShape decodes the CMP_* family: four (signed, unsigned) int pairs
// followed by the two float widths.
func cmpShape(op asm.Opcode) (width uint32, isFloat, isSigned bool) {
	switch op {
	case asm.CmpFlt32:
		return 4, true, false
	case asm.CmpFlt64:
		return 8, true, false
	default:
		offset := int(op - asm.CmpInt8)
		return widthFromIndex(offset / 2), false, offset%2 == 0
	}
}

// ptrFamilyWidth decodes LOAD_PTR_W / STORE_PTR_W / PUSH_REG_W /
// POP_W_INTO_REG relative to their respective _8 member.
func ptrFamilyWidth(op, base asm.Opcode) uint32 {
	return widthFromIndex(int(op - base))
}
