package asm

import "fmt"

// CodegenError is raised by the assembler/register allocator for every
// assemble-time failure: register exhaustion, a duplicate label, or a
// reference to a label that was never bound.
type CodegenError struct {
	msg string
}

func (e *CodegenError) Error() string { return e.msg }

func codegenErrf(format string, args ...any) *CodegenError {
	return &CodegenError{msg: fmt.Sprintf(format, args...)}
}

// labelRef is one recorded back-patch site: the byte offset of the
// placeholder 8-byte displacement immediately following a branch/call
// opcode.
type labelRef struct {
	site int
}

// LoopLabels is the (start, end) pair consulted by break/continue codegen
// for the innermost enclosing loop.
type LoopLabels struct {
	Start, End string
}

// Emitter owns the program byte buffer, the register free-list, the
// label table with deferred back-patching, and the reversed static-data
// sink.
type Emitter struct {
	Program *ByteBuffer

	freeRegs [GeneralPurposeRegisterCount]bool // true == busy

	labels          map[string]int
	labelReferences map[string][]labelRef

	nextLabelID int

	loopStack []LoopLabels

	// staticData accumulates blobs byte-reversed: AddStaticData appends
	// reverse(s + NUL) after everything already written, so that the
	// first blob added ends up nearest the stack top (smallest negative
	// offset magnitude) and later blobs sit further below it. This
	// reverse-append order is what lets each blob's offset be handed back
	// before the total static-data size is known; Assemble un-reverses
	// the whole buffer into the forward on-disk layout.
	staticData []byte
}

// NewEmitter returns an Emitter ready to accept instructions.
func NewEmitter() *Emitter {
	return &Emitter{
		Program:         NewByteBuffer(),
		labels:          map[string]int{},
		labelReferences: map[string][]labelRef{},
	}
}

// GetRegister returns the lowest-indexed free general-purpose register
// and marks it busy. Returns a CodegenError if none remain — register
// spilling is an acknowledged, unimplemented abort path.
func (e *Emitter) GetRegister() (Register, error) {
	for i, busy := range e.freeRegs {
		if !busy {
			e.freeRegs[i] = true
			return Register(i), nil
		}
	}
	return 0, codegenErrf("register exhaustion: all %d general-purpose registers busy", GeneralPurposeRegisterCount)
}

// FreeRegister releases a register obtained from GetRegister.
func (e *Emitter) FreeRegister(r Register) {
	e.freeRegs[r] = false
}

// NewLabel generates a fresh, internally-unique label name. Codegen uses
// this for synthesized control-flow targets (if/else/while/for branches);
// it never collides with a user-visible name since function/global names
// never contain '.'.
func (e *Emitter) NewLabel(prefix string) string {
	id := e.nextLabelID
	e.nextLabelID++
	return fmt.Sprintf(".L%s%d", prefix, id)
}

// AddLabel binds the current program offset to name. Re-defining a label
// is a fatal CodegenError.
func (e *Emitter) AddLabel(name string) error {
	if _, ok := e.labels[name]; ok {
		return codegenErrf("duplicate label %q", name)
	}
	e.labels[name] = e.Program.Len()
	return nil
}

// PushInstruction writes the opcode's u16 tag.
func (e *Emitter) PushInstruction(op Opcode) {
	e.Program.PushU16(uint16(op))
}

func (e *Emitter) PushReg(r Register)   { e.Program.PushU8(uint8(r)) }
func (e *Emitter) PushLit8(v uint8)     { e.Program.PushU8(v) }
func (e *Emitter) PushLit16(v uint16)   { e.Program.PushU16(v) }
func (e *Emitter) PushLit32(v uint32)   { e.Program.PushU32(v) }
func (e *Emitter) PushLit64(v uint64)   { e.Program.PushU64(v) }
func (e *Emitter) PushCString(s string) { e.Program.PushCString(s) }

// emitBranch writes op followed by an 8-byte placeholder displacement and
// records the site for back-patching at Assemble time.
func (e *Emitter) emitBranch(op Opcode, label string) {
	e.PushInstruction(op)
	site := e.Program.Len()
	e.Program.PushI64(0)
	e.labelReferences[label] = append(e.labelReferences[label], labelRef{site: site})
}

// Jump emits an unconditional JUMP to label.
func (e *Emitter) Jump(label string) { e.emitBranch(Jump, label) }

// Call emits a CALL to label.
func (e *Emitter) Call(label string) { e.emitBranch(Call, label) }

// JumpIf emits one of the JUMP_IF_* conditional branches to label.
func (e *Emitter) JumpIf(op Opcode, label string) {
	e.emitBranch(op, label)
}

// PushLoop pushes a new (start, end) label pair for break/continue
// codegen inside the loop body about to be lowered.
func (e *Emitter) PushLoop(start, end string) {
	e.loopStack = append(e.loopStack, LoopLabels{Start: start, End: end})
}

// PopLoop removes the innermost loop scope.
func (e *Emitter) PopLoop() {
	e.loopStack = e.loopStack[:len(e.loopStack)-1]
}

// CurrentLoop returns the innermost enclosing loop's labels, or ok=false
// if break/continue appears outside any loop.
func (e *Emitter) CurrentLoop() (LoopLabels, bool) {
	if len(e.loopStack) == 0 {
		return LoopLabels{}, false
	}
	return e.loopStack[len(e.loopStack)-1], true
}

// Labels returns a copy of the label table: every bound name and its
// byte offset in the program region. This is the assembler-side hook a
// debugger or disassembler resolves addresses against.
func (e *Emitter) Labels() map[string]int {
	out := make(map[string]int, len(e.labels))
	for name, off := range e.labels {
		out[name] = off
	}
	return out
}

// AddStaticData appends s's bytes followed by a NUL terminator, in
// reverse byte order, to the static-data sink and returns the (negative)
// displacement from the stack top at which the blob will live once the
// image is loaded, along with its size including the terminator.
func (e *Emitter) AddStaticData(s string) (offset int64, size uint32) {
	size = uint32(len(s)) + 1
	e.staticData = append(e.staticData, 0)
	for i := len(s) - 1; i >= 0; i-- {
		e.staticData = append(e.staticData, s[i])
	}
	// The offset is negative: Assemble un-reverses the sink, so this
	// blob's first byte ends up `len(staticData)` bytes below the end of
	// the final static-data region (blobs appended later land below it),
	// and the stack top sits just above that region.
	return -int64(len(e.staticData)), size
}

// StaticDataSize is the current total size of the static-data region;
// final only after codegen has emitted every literal.
func (e *Emitter) StaticDataSize() uint32 { return uint32(len(e.staticData)) }

// Assemble resolves every recorded label reference, writing
// label_offset - reference_site + 2 as a signed 64-bit relative
// displacement at each site (the +2 compensates for the u16 opcode width
// already consumed by the VM's fetch stage before it reads the
// displacement), then returns the finalized program bytes and the
// static-data region in on-disk order: the byte-reversed sink is
// reversed once more here, so the loader can copy the region onto the
// stack bottom verbatim and every handed-out negative offset addresses
// its blob's first byte.
func (e *Emitter) Assemble() (program, staticData []byte, err error) {
	for label, refs := range e.labelReferences {
		target, ok := e.labels[label]
		if !ok {
			return nil, nil, codegenErrf("reference to undefined label %q", label)
		}
		for _, ref := range refs {
			disp := int64(target) - int64(ref.site) + 2
			e.Program.OverwriteI64(ref.site, disp)
		}
	}

	staticOut := make([]byte, len(e.staticData))
	for i, b := range e.staticData {
		staticOut[len(staticOut)-1-i] = b
	}
	return e.Program.Build(), staticOut, nil
}
