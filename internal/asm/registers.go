package asm

// Register indexes the VM's fixed register file. General-purpose
// registers are allocated by the assembler's free-list; the five
// distinguished registers below are never handed out by GetRegister.
type Register uint8

// GeneralPurposeRegisterCount is the number of registers the code
// generator's allocator can hand out. Register exhaustion is a fatal
// CodegenError; there is no spill-to-stack path.
const GeneralPurposeRegisterCount = 16

const (
	R0 Register = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	RInstructionPtr
	RStackPtr
	RFramePtr
	RAccumulator0
	RAccumulator1

	// RegisterCount is the total width of the VM's register file,
	// general-purpose plus distinguished registers.
	RegisterCount
)

func (r Register) String() string {
	switch r {
	case RInstructionPtr:
		return "R_INSTRUCTION_PTR"
	case RStackPtr:
		return "R_STACK_PTR"
	case RFramePtr:
		return "R_FRAME_PTR"
	case RAccumulator0:
		return "R_ACCUMULATOR_0"
	case RAccumulator1:
		return "R_ACCUMULATOR_1"
	default:
		if int(r) < GeneralPurposeRegisterCount {
			return "R" + itoa(uint32(r))
		}
		return "R_UNDEFINED"
	}
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
