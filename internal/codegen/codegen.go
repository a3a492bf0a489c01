// Package codegen lowers a type-checked AST to a flat bytecode stream via
// the asm.Emitter's three visitor modes: codeGen (statement level),
// getValue (any readable expression into a register) and store (any
// assignable expression from a register).
package codegen

import (
	"fmt"
	"math"

	"github.com/iannisdezwart/tea-sub000/internal/asm"
	"github.com/iannisdezwart/tea-sub000/internal/exe"
	"github.com/iannisdezwart/tea-sub000/internal/lang"
)

// CodegenError wraps every lowering failure that is not already an
// asm.CodegenError (unresolved loop scope, call to a function whose
// signature codegen can't find, and so on).
type CodegenError struct {
	msg string
}

func (e *CodegenError) Error() string { return e.msg }

func errf(format string, args ...any) *CodegenError {
	return &CodegenError{msg: fmt.Sprintf(format, args...)}
}

// frameHeaderSize is the number of bytes between a callee's last
// parameter and its frame pointer: the argument-block size word the
// caller pushes before CALL (8), then the return address (8) and the
// saved caller frame pointer (8) that CALL pushes. Parameters live just
// below that header, in
// push order, so a parameter's address is
// FRAME_PTR - frameHeaderSize - paramsSize + paramOffset.
const frameHeaderSize = 24

// Generator lowers a checked AST into a finished executable image.
type Generator struct {
	ast *lang.AST
	chk *lang.Checker
	em  *asm.Emitter

	stringAddrs []uint64 // absolute address per interned string literal id
	globalBase  uint64   // = static data size; globals start here

	// per-function state, reset at each function boundary
	paramsSize uint32
	retType    lang.Type
}

// Symbol is one named entity of the debug-symbol view: a global (Offset
// is its displacement within the globals region), a function (Offset is
// its label's byte offset in the program region), or a parameter/local
// scoped under its function (Offset is frame-relative).
type Symbol struct {
	Name   string
	Type   string
	Offset uint32
	Scope  []Symbol
}

// Symbols is the debug view of a compiled program: every bound label's
// byte offset plus the named globals and functions with their types —
// the hooks a debugger shell or disassembler is built against. The
// sidecar file cmd/teac writes under --debug is rendered from this.
type Symbols struct {
	Labels    map[string]int
	Globals   []Symbol
	Functions []Symbol
}

// Generate runs the full AST-to-bytecode lowering and returns the
// assembled executable image.
func Generate(ast *lang.AST, chk *lang.Checker) (exe.Image, error) {
	img, _, err := generate(ast, chk, false)
	return img, err
}

// GenerateDebug is Generate plus the debug-symbol view of the result.
func GenerateDebug(ast *lang.AST, chk *lang.Checker) (exe.Image, *Symbols, error) {
	return generate(ast, chk, true)
}

func generate(ast *lang.AST, chk *lang.Checker, withSymbols bool) (exe.Image, *Symbols, error) {
	g := &Generator{ast: ast, chk: chk, em: asm.NewEmitter()}
	if err := g.run(); err != nil {
		return exe.Image{}, nil, err
	}
	program, staticData, err := g.em.Assemble()
	if err != nil {
		return exe.Image{}, nil, err
	}
	img := exe.Image{StaticData: staticData, Program: program}
	if !withSymbols {
		return img, nil, nil
	}
	return img, g.symbols(), nil
}

// symbols collects the debug view after lowering: label offsets come
// from the assembler, global and frame layouts from the checker.
func (g *Generator) symbols() *Symbols {
	syms := &Symbols{Labels: g.em.Labels()}

	for _, idx := range g.ast.GlobalDeclarations {
		nameID := uint32(g.ast.NodeD[idx].Rhs)
		gi, ok := g.chk.GlobalByID(nameID)
		if !ok {
			continue
		}
		syms.Globals = append(syms.Globals, Symbol{
			Name:   g.ast.IdentName(nameID),
			Type:   gi.Type.String(g.ast.ExtraData),
			Offset: gi.Offset,
		})
	}

	for _, idx := range g.ast.FunctionDeclarations {
		nameID := uint32(g.ast.NodeD[idx].Lhs)
		name := g.ast.IdentName(nameID)
		info, ok := g.chk.FunctionByID(nameID)
		if !ok {
			continue
		}
		fn := Symbol{
			Name:   name,
			Type:   info.ReturnType.String(g.ast.ExtraData),
			Offset: uint32(syms.Labels[name]),
		}
		var off uint32
		for _, p := range info.Params {
			fn.Scope = append(fn.Scope, Symbol{
				Name:   g.ast.IdentName(p.NameID),
				Type:   p.Type.String(g.ast.ExtraData),
				Offset: off,
			})
			off += p.Type.ByteSize(g.ast.ExtraData, 0)
		}
		off = 0
		for _, l := range info.Locals {
			fn.Scope = append(fn.Scope, Symbol{
				Name:   g.ast.IdentName(l.NameID),
				Type:   l.Type.String(g.ast.ExtraData),
				Offset: off,
			})
			off += l.Type.StorageSize(g.ast.ExtraData)
		}
		syms.Functions = append(syms.Functions, fn)
	}
	return syms
}

func (g *Generator) run() error {
	g.internStaticData()

	g.em.PushInstruction(asm.AllocateStack)
	g.em.PushLit64(uint64(g.chk.GlobalsSize()))

	for _, idx := range g.ast.GlobalDeclarations {
		if err := g.genGlobalInit(idx); err != nil {
			return err
		}
	}

	// Caller-side convention for the implicit entry call: push a zero
	// argument-block size (main takes no parameters) then CALL main.
	zero, err := g.moveLitIntoReg(0)
	if err != nil {
		return err
	}
	g.em.PushInstruction(asm.PushReg64)
	g.em.PushReg(zero)
	g.em.FreeRegister(zero)
	g.em.Call("main")
	g.em.Jump(haltLabel)

	for _, idx := range g.ast.FunctionDeclarations {
		if err := g.genFunction(idx); err != nil {
			return err
		}
	}

	return g.em.AddLabel(haltLabel)
}

const haltLabel = "__halt"

// internStaticData pre-registers every string literal the parser
// interned so that every subsequent address computation (global bases,
// string-literal reads) can use the final static-data size as a
// compile-time constant instead of deferring to a second pass — every
// string was already collected during parsing, before codegen starts.
func (g *Generator) internStaticData() {
	neg := make([]int64, g.ast.NumStringLits())
	for i := 0; i < g.ast.NumStringLits(); i++ {
		off, _ := g.em.AddStaticData(g.ast.StringLit(uint32(i)))
		neg[i] = off
	}
	g.globalBase = uint64(g.em.StaticDataSize())
	g.stringAddrs = make([]uint64, len(neg))
	for i, n := range neg {
		g.stringAddrs[i] = uint64(int64(g.globalBase) + n)
	}
}

func (g *Generator) genGlobalInit(idx lang.NodeIndex) error {
	data := g.ast.NodeD[idx]
	if data.Lhs == lang.NilNode {
		return nil
	}

	if g.ast.Tags[data.Lhs] == lang.TagInitList {
		return g.storeInitList(idx, data.Lhs)
	}

	nameID := uint32(data.Rhs)
	gi, _ := g.chk.GlobalByID(nameID)

	reg, err := g.getValue(data.Lhs)
	if err != nil {
		return err
	}
	g.applyCast(data.Lhs, reg)

	addr, err := g.moveLitIntoReg(g.globalBase + uint64(gi.Offset))
	if err != nil {
		g.em.FreeRegister(reg)
		return err
	}
	g.em.PushInstruction(storePtrOpcode(gi.Type.ByteSize(g.ast.ExtraData, 0)))
	g.em.PushReg(reg)
	g.em.PushReg(addr)
	g.em.FreeRegister(reg)
	g.em.FreeRegister(addr)
	return nil
}

// genFunction lowers one function declaration: a label, the locals
// prologue, the body, and a fall-through RETURN if the body doesn't
// already end in one.
func (g *Generator) genFunction(idx lang.NodeIndex) error {
	data := g.ast.NodeD[idx]
	nameID := uint32(data.Lhs)
	info, ok := g.chk.FunctionByID(nameID)
	if !ok {
		return errf("internal error: function %q has no registered signature", g.ast.IdentName(nameID))
	}

	if err := g.em.AddLabel(g.ast.IdentName(nameID)); err != nil {
		return err
	}
	g.em.PushInstruction(asm.AllocateStack)
	g.em.PushLit64(uint64(info.LocalsSize))

	g.paramsSize = info.ParamsSize
	g.retType = info.ReturnType

	if err := g.codeGen(data.Rhs); err != nil {
		return err
	}

	if !endsInReturn(g.ast, data.Rhs) {
		g.em.PushInstruction(asm.Return)
	}
	return nil
}

// endsInReturn reports whether a statement (or the last statement of a
// block) is a return, so genFunction can skip an unneeded trailing
// RETURN — a cheap, purely-syntactic check, not full reachability
// analysis (an if/else where both arms return is not recognized and
// still gets a harmless extra RETURN after it).
func endsInReturn(ast *lang.AST, idx lang.NodeIndex) bool {
	if idx == lang.NilNode {
		return false
	}
	switch ast.Tags[idx] {
	case lang.TagReturn:
		return true
	case lang.TagBlock:
		stmts := ast.Extra(ast.NodeD[idx].Extra)
		if len(stmts) == 0 {
			return false
		}
		return endsInReturn(ast, stmts[len(stmts)-1])
	default:
		return false
	}
}

// moveLitIntoReg allocates a register and loads a 64-bit immediate into
// it, the universal way to materialize any compile-time-known address or
// constant before it can participate in register arithmetic.
func (g *Generator) moveLitIntoReg(v uint64) (asm.Register, error) {
	reg, err := g.em.GetRegister()
	if err != nil {
		return 0, err
	}
	g.em.PushInstruction(asm.MoveLit)
	g.em.PushLit64(v)
	g.em.PushReg(reg)
	return reg, nil
}

// addImmediate computes base + imm (imm may be negative, wrapping as
// two's complement in the 64-bit register file) into a fresh register,
// leaving base untouched.
func (g *Generator) addImmediate(base asm.Register, imm int64) (asm.Register, error) {
	reg, err := g.moveLitIntoReg(uint64(imm))
	if err != nil {
		return 0, err
	}
	g.em.PushInstruction(asm.AddInt64)
	g.em.PushReg(reg)
	g.em.PushReg(base)
	return reg, nil
}

// applyCast emits the implicit conversion the checker recorded for node,
// if any, operating in place on reg.
func (g *Generator) applyCast(node lang.NodeIndex, reg asm.Register) {
	switch g.ast.CastOps[node] {
	case lang.CastIntToFlt32:
		g.em.PushInstruction(asm.CastIntToFlt32)
		g.em.PushReg(reg)
	case lang.CastIntToFlt64:
		g.em.PushInstruction(asm.CastIntToFlt64)
		g.em.PushReg(reg)
	case lang.CastFlt32ToInt:
		g.em.PushInstruction(asm.CastFlt32ToInt)
		g.em.PushReg(reg)
	case lang.CastFlt64ToInt:
		g.em.PushInstruction(asm.CastFlt64ToInt)
		g.em.PushReg(reg)
	}
}

func float64Bits(v float64) uint64 { return math.Float64bits(v) }
