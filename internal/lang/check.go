package lang

import "fmt"

// TypeError is raised by the checker for every semantic failure: a
// duplicate declaration, an undeclared identifier, a non-fitting
// assignment, an invalid operator/operand combination, and so on.
type TypeError struct {
	*PosError
}

func typeErr(pos TokenPos, format string, args ...any) *TypeError {
	return &TypeError{posErr(int(pos.Line), int(pos.Col), format, args...)}
}

// FieldInfo is one class member: its interned name and declared type.
type FieldInfo struct {
	NameID uint32
	Type   Type
	Offset uint32
}

// ClassInfo is a class's layout: cumulative byte size and its fields in
// declaration order. Each field's offset is computed once when the class
// is registered and stored in its FieldInfo; FieldByID finds a field by
// linear scan over Fields.
type ClassInfo struct {
	ByteSize uint32
	Fields   []FieldInfo
}

func (ci *ClassInfo) FieldByID(id uint32) (FieldInfo, bool) {
	for _, f := range ci.Fields {
		if f.NameID == id {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// ParamInfo is one function parameter.
type ParamInfo struct {
	NameID uint32
	Type   Type
}

// FuncInfo is a function's declared shape, plus the locals its body
// declared — kept around as the symbol hook a debugger resolves
// frame offsets against.
type FuncInfo struct {
	ReturnType Type
	Params     []ParamInfo
	ParamsSize uint32
	Locals     []ParamInfo
	LocalsSize uint32
}

// VarInfo is a resolved local, parameter, or global: its type and frame
// or global offset.
type VarInfo struct {
	Type   Type
	Offset uint32
}

// Checker walks a parsed AST in program order, resolving identifiers and
// assigning the Types slice entry of every expression node.
type Checker struct {
	ast *AST

	classes   map[uint32]*ClassInfo
	functions map[uint32]*FuncInfo

	globals     map[uint32]*VarInfo
	globalsSize uint32

	parameters map[uint32]*VarInfo
	paramsSize uint32
	locals     map[uint32]*VarInfo
	localsSize uint32

	currentFunc        *FuncInfo
	currentFuncRetType Type
}

// Check runs a single pass over ast, registering classes, globals and
// functions and then resolving identifiers and assigning a type to every
// expression, returning the populated Checker (the code generator reads
// class/function layouts straight back off it).
func Check(ast *AST) (*Checker, error) {
	c := &Checker{
		ast:       ast,
		classes:   map[uint32]*ClassInfo{},
		functions: map[uint32]*FuncInfo{},
		globals:   map[uint32]*VarInfo{},
	}

	seenClasses := map[uint32]bool{}
	for _, idx := range ast.ClassDeclarations {
		classID := uint32(ast.NodeD[idx].Rhs)
		if seenClasses[classID] {
			return nil, typeErr(ast.Toks[idx], "duplicate class declaration")
		}
		seenClasses[classID] = true
		if err := c.registerClass(idx, classID); err != nil {
			return nil, err
		}
	}

	seenGlobals := map[uint32]bool{}
	for _, idx := range ast.GlobalDeclarations {
		nameID := uint32(ast.NodeD[idx].Rhs)
		if seenGlobals[nameID] {
			return nil, typeErr(ast.Toks[idx], "duplicate global declaration %q", ast.IdentName(nameID))
		}
		seenGlobals[nameID] = true
		if err := c.registerGlobal(idx, nameID); err != nil {
			return nil, err
		}
	}

	seenFuncs := map[uint32]bool{}
	for _, idx := range ast.FunctionDeclarations {
		nameID := uint32(ast.NodeD[idx].Lhs)
		if seenFuncs[nameID] {
			return nil, typeErr(ast.Toks[idx], "duplicate function declaration %q", ast.IdentName(nameID))
		}
		seenFuncs[nameID] = true
		c.registerFunctionSignature(idx, nameID)
	}

	for _, idx := range ast.GlobalDeclarations {
		if err := c.checkGlobalInit(idx); err != nil {
			return nil, err
		}
	}

	for _, idx := range ast.FunctionDeclarations {
		if err := c.checkFunction(idx); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ClassByID returns the registered layout for a class id, for the code
// generator's member-access and instance-size lowering.
func (c *Checker) ClassByID(classID uint32) (*ClassInfo, bool) {
	ci, ok := c.classes[classID]
	return ci, ok
}

// FunctionByID returns a function's declared shape and locals-frame size,
// for the code generator's call and prologue lowering.
func (c *Checker) FunctionByID(nameID uint32) (*FuncInfo, bool) {
	fi, ok := c.functions[nameID]
	return fi, ok
}

// GlobalsSize is the cumulative byte size of the globals region, which the
// code generator's entry prologue reserves with ALLOCATE_STACK just above
// static data.
func (c *Checker) GlobalsSize() uint32 { return c.globalsSize }

// GlobalByID returns a registered global's layout.
func (c *Checker) GlobalByID(nameID uint32) (*VarInfo, bool) {
	v, ok := c.globals[nameID]
	return v, ok
}

// Globals exposes the whole globals table, keyed by interned name id —
// the symbol hook a debugger resolves global addresses against.
func (c *Checker) Globals() map[uint32]*VarInfo { return c.globals }

// Functions exposes the whole function table, keyed by interned name id.
func (c *Checker) Functions() map[uint32]*FuncInfo { return c.functions }

// resolveType fills in the byte size of a class-typed annotation. The
// parser records class types with size 0 because the class layout isn't
// known until every declaration has been scanned; the checker owns the
// class table, so every TypeRef read goes through here.
func (c *Checker) resolveType(t Type) Type {
	if t.Value >= uint32(TypeBuiltinEnd) {
		if ci, ok := c.classes[t.Value]; ok {
			t.Size = ci.ByteSize
		}
	}
	return t
}

func (c *Checker) registerClass(idx NodeIndex, classID uint32) error {
	data := c.ast.NodeD[idx]
	fields := c.ast.Extra(data.Extra)
	info := &ClassInfo{}
	var offset uint32
	for _, fieldIdx := range fields {
		fd := c.ast.NodeD[fieldIdx]
		ft := c.resolveType(c.ast.TypeRef(fd.Aux))
		if ft.IsClass(c.ast.ExtraData) && ft.Size == 0 {
			if _, ok := c.classes[ft.Value]; !ok {
				return typeErr(c.ast.Toks[fieldIdx], "class field used by value before its class is declared")
			}
		}
		nameID := uint32(fd.Lhs)
		info.Fields = append(info.Fields, FieldInfo{NameID: nameID, Type: ft, Offset: offset})
		offset += ft.StorageSize(c.ast.ExtraData)
	}
	info.ByteSize = offset
	c.classes[classID] = info
	return nil
}

func (c *Checker) registerGlobal(idx NodeIndex, nameID uint32) error {
	data := c.ast.NodeD[idx]
	t := c.resolveType(c.ast.TypeRef(int32(data.Aux)))
	size := t.StorageSize(c.ast.ExtraData)
	offset := c.globalsSize
	c.globalsSize += size
	c.globals[nameID] = &VarInfo{Type: t, Offset: offset}
	c.ast.Bindings[idx] = Binding{Kind: BindGlobal, Offset: offset}
	c.ast.Types[idx] = t
	return nil
}

func (c *Checker) registerFunctionSignature(idx NodeIndex, nameID uint32) {
	data := c.ast.NodeD[idx]
	retType := c.resolveType(c.ast.TypeRef(int32(data.Aux)))
	params := c.ast.Extra(data.Extra)
	info := &FuncInfo{ReturnType: retType}
	for _, pIdx := range params {
		pd := c.ast.NodeD[pIdx]
		info.Params = append(info.Params, ParamInfo{NameID: uint32(pd.Lhs), Type: c.resolveType(c.ast.TypeRef(pd.Aux))})
	}
	c.functions[nameID] = info
}

func (c *Checker) checkGlobalInit(idx NodeIndex) error {
	data := c.ast.NodeD[idx]
	if data.Lhs == NilNode {
		return nil
	}
	declType := c.ast.Types[idx]
	return c.checkAssignableInit(idx, data.Lhs, declType)
}

func (c *Checker) checkAssignableInit(declIdx, initIdx NodeIndex, declType Type) error {
	if c.ast.Tags[initIdx] == TagInitList {
		return c.checkInitList(initIdx, declType)
	}
	if err := c.checkExpr(initIdx); err != nil {
		return err
	}
	fits := c.ast.Types[initIdx].Fits(declType, c.ast.ExtraData)
	if fits == FitsNo {
		return typeErr(c.ast.Toks[initIdx], "initializer of type %s does not fit declared type %s",
			c.ast.Types[initIdx].String(c.ast.ExtraData), declType.String(c.ast.ExtraData))
	}
	c.ast.CastOps[initIdx] = castOpFor(fits)
	return nil
}

// checkInitList validates a brace initializer element-wise: against the
// declared field types of a class target, or against the element type of
// an array target. Each element records its own implicit cast; nested
// brace lists recurse with the element's type as the new target.
func (c *Checker) checkInitList(listIdx NodeIndex, declType Type) error {
	elems := c.ast.Extra(c.ast.NodeD[listIdx].Extra)

	if declType.IsClass(c.ast.ExtraData) {
		info, ok := c.classes[declType.Value]
		if !ok {
			return typeErr(c.ast.Toks[listIdx], "unknown class in initializer")
		}
		if len(elems) > len(info.Fields) {
			return typeErr(c.ast.Toks[listIdx], "initializer has %d elements, class has %d fields",
				len(elems), len(info.Fields))
		}
		for i, e := range elems {
			if err := c.checkAssignableInit(listIdx, e, info.Fields[i].Type); err != nil {
				return err
			}
		}
		c.ast.Types[listIdx] = declType
		return nil
	}

	if !declType.IsArray(c.ast.ExtraData) {
		return typeErr(c.ast.Toks[listIdx], "brace initializer requires an array or class target, got %s",
			declType.String(c.ast.ExtraData))
	}
	if dim := c.ast.ExtraData[declType.ArraySizesIdx+1]; dim > 0 && uint32(len(elems)) > dim {
		return typeErr(c.ast.Toks[listIdx], "initializer has %d elements, array holds %d", len(elems), dim)
	}
	elemType := declType.PointedType(&c.ast.ExtraData)
	for _, e := range elems {
		if err := c.checkAssignableInit(listIdx, e, elemType); err != nil {
			return err
		}
	}
	c.ast.Types[listIdx] = declType
	return nil
}

func castOpFor(f Fits) CastOp {
	switch f {
	case FitsIntToFlt32CastNeeded:
		return CastIntToFlt32
	case FitsIntToFlt64CastNeeded:
		return CastIntToFlt64
	case FitsFlt32ToIntCastNeeded:
		return CastFlt32ToInt
	case FitsFlt64ToIntCastNeeded:
		return CastFlt64ToInt
	default:
		return CastNone
	}
}

func (c *Checker) checkFunction(idx NodeIndex) error {
	data := c.ast.NodeD[idx]
	nameID := uint32(data.Lhs)
	info := c.functions[nameID]

	c.parameters = map[uint32]*VarInfo{}
	c.paramsSize = 0
	c.locals = map[uint32]*VarInfo{}
	c.localsSize = 0
	c.currentFunc = info
	c.currentFuncRetType = info.ReturnType

	for i, pIdx := range c.ast.Extra(data.Extra) {
		pd := c.ast.NodeD[pIdx]
		t := info.Params[i].Type
		off := c.paramsSize
		// Parameters occupy their byte size, not their storage size: an
		// array argument is passed as a pointer to its first element.
		c.paramsSize += t.ByteSize(c.ast.ExtraData, 0)
		c.parameters[uint32(pd.Lhs)] = &VarInfo{Type: t, Offset: off}
		c.ast.Bindings[pIdx] = Binding{Kind: BindParam, Offset: off}
		c.ast.Types[pIdx] = t
	}

	info.ParamsSize = c.paramsSize

	if err := c.checkStmt(data.Rhs); err != nil {
		return err
	}
	info.LocalsSize = c.localsSize
	return nil
}

func (c *Checker) declareLocal(idx NodeIndex, nameID uint32, t Type) {
	off := c.localsSize
	c.localsSize += t.StorageSize(c.ast.ExtraData)
	c.locals[nameID] = &VarInfo{Type: t, Offset: off}
	c.currentFunc.Locals = append(c.currentFunc.Locals, ParamInfo{NameID: nameID, Type: t})
	c.ast.Bindings[idx] = Binding{Kind: BindLocal, Offset: off}
	c.ast.Types[idx] = t
}

func (c *Checker) checkStmt(idx NodeIndex) error {
	if idx == NilNode {
		return nil
	}
	tag := c.ast.Tags[idx]
	data := c.ast.NodeD[idx]

	switch tag {
	case TagBlock:
		for _, s := range c.ast.Extra(data.Extra) {
			if err := c.checkStmt(s); err != nil {
				return err
			}
		}
		return nil

	case TagVarDecl:
		nameID := uint32(data.Rhs)
		if _, ok := c.locals[nameID]; ok {
			return typeErr(c.ast.Toks[idx], "duplicate local declaration %q", c.ast.IdentName(nameID))
		}
		if _, ok := c.parameters[nameID]; ok {
			return typeErr(c.ast.Toks[idx], "local %q shadows a parameter", c.ast.IdentName(nameID))
		}
		t := c.resolveType(c.ast.TypeRef(int32(data.Aux)))
		c.declareLocal(idx, nameID, t)
		if data.Lhs != NilNode {
			return c.checkAssignableInit(idx, data.Lhs, t)
		}
		return nil

	case TagIf:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		if err := c.checkStmt(data.Rhs); err != nil {
			return err
		}
		return c.checkStmt(NodeIndex(data.Aux))

	case TagWhile:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		return c.checkStmt(data.Rhs)

	case TagFor:
		init := NodeIndex(data.Aux)
		update := c.ast.Extra(data.Extra)[0]
		if err := c.checkStmt(init); err != nil {
			return err
		}
		if data.Lhs != NilNode {
			if err := c.checkExpr(data.Lhs); err != nil {
				return err
			}
		}
		if update != NilNode {
			if err := c.checkExpr(update); err != nil {
				return err
			}
		}
		return c.checkStmt(data.Rhs)

	case TagReturn:
		if data.Lhs == NilNode {
			return nil
		}
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		fits := c.ast.Types[data.Lhs].Fits(c.currentFuncRetType, c.ast.ExtraData)
		if fits == FitsNo {
			return typeErr(c.ast.Toks[idx], "return type %s does not fit function return type %s",
				c.ast.Types[data.Lhs].String(c.ast.ExtraData), c.currentFuncRetType.String(c.ast.ExtraData))
		}
		c.ast.CastOps[data.Lhs] = castOpFor(fits)
		return nil

	case TagBreak, TagContinue:
		return nil

	case TagSysCall:
		for _, a := range c.ast.Extra(data.Extra) {
			if err := c.checkExpr(a); err != nil {
				return err
			}
		}
		return nil

	case TagExprStatement:
		return c.checkExpr(data.Lhs)

	default:
		return fmt.Errorf("internal error: unhandled statement tag %d", tag)
	}
}

// lookupIdent resolves a name against locals, then parameters, then
// globals, innermost scope first.
func (c *Checker) lookupIdent(nameID uint32) (Binding, Type, bool) {
	if v, ok := c.locals[nameID]; ok {
		return Binding{Kind: BindLocal, Offset: v.Offset}, v.Type, true
	}
	if v, ok := c.parameters[nameID]; ok {
		return Binding{Kind: BindParam, Offset: v.Offset}, v.Type, true
	}
	if v, ok := c.globals[nameID]; ok {
		return Binding{Kind: BindGlobal, Offset: v.Offset}, v.Type, true
	}
	return Binding{}, Type{}, false
}

func (c *Checker) checkExpr(idx NodeIndex) error {
	tag := c.ast.Tags[idx]
	data := c.ast.NodeD[idx]
	extraData := c.ast.ExtraData

	switch tag {
	case TagLiteralInt:
		v := c.ast.IntLiterals[data.Aux]
		c.ast.Types[idx] = TypeFromBuiltin(smallestFittingUint(v), -1)
		return nil

	case TagLiteralFloat:
		c.ast.Types[idx] = TypeFromBuiltin(TypeF64, -1)
		return nil

	case TagLiteralChar:
		c.ast.Types[idx] = TypeFromBuiltin(TypeU8, -1)
		return nil

	case TagLiteralString:
		ptrIdx := c.ast.PushIndirection([]uint32{0})
		c.ast.Types[idx] = TypeFromBuiltin(TypeU8, ptrIdx)
		return nil

	case TagIdentifier:
		nameID := uint32(data.Aux)
		b, t, ok := c.lookupIdent(nameID)
		if !ok {
			return typeErr(c.ast.Toks[idx], "undeclared identifier %q", c.ast.IdentName(nameID))
		}
		c.ast.Bindings[idx] = b
		c.ast.Types[idx] = t
		return nil

	case TagAdd, TagSub:
		return c.checkAddSub(idx, data)

	case TagMul, TagDiv:
		return c.checkNumericBinary(idx, data)

	case TagMod:
		return c.checkIntegerBinary(idx, data)

	case TagShl, TagShr, TagBitAnd, TagBitXor, TagBitOr:
		return c.checkIntegerBinary(idx, data)

	case TagLess, TagLessEq, TagGreater, TagGreaterEq, TagEqual, TagNotEqual:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		if err := c.checkExpr(data.Rhs); err != nil {
			return err
		}
		lt, rt := c.ast.Types[data.Lhs], c.ast.Types[data.Rhs]
		if lt.IsFloat() != rt.IsFloat() {
			// A mixed comparison runs as a float compare at the float
			// side's width; the integer side converts first.
			if lt.IsFloat() {
				c.recordIntToFloat(data.Rhs, rt, lt)
			} else {
				c.recordIntToFloat(data.Lhs, lt, rt)
			}
		}
		c.ast.Types[idx] = TypeFromBuiltin(TypeU8, -1)
		return nil

	case TagLogAnd, TagLogOr:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		if err := c.checkExpr(data.Rhs); err != nil {
			return err
		}
		c.ast.Types[idx] = TypeFromBuiltin(TypeU8, -1)
		return nil

	case TagUnaryPlus, TagUnaryNeg:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		t := c.ast.Types[data.Lhs]
		if !t.IsInteger() && !t.IsFloat() {
			return typeErr(c.ast.Toks[idx], "unary +/- requires a numeric operand")
		}
		c.ast.Types[idx] = t
		return nil

	case TagBitNot:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		t := c.ast.Types[data.Lhs]
		if !t.IsInteger() {
			return typeErr(c.ast.Toks[idx], "~ requires an integer operand")
		}
		c.ast.Types[idx] = t
		return nil

	case TagLogNot:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		c.ast.Types[idx] = TypeFromBuiltin(TypeU8, -1)
		return nil

	case TagDeref:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		t := c.ast.Types[data.Lhs]
		if t.PointerDepth(extraData) == 0 {
			return typeErr(c.ast.Toks[idx], "cannot dereference non-pointer type %s", t.String(extraData))
		}
		c.ast.Types[idx] = t.PointedType(&c.ast.ExtraData)
		return nil

	case TagAddrOf:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		t := c.ast.Types[data.Lhs]
		levels := append([]uint32{0}, indirectionLevels(t, extraData)...)
		c.ast.Types[idx] = Type{Value: t.Value, Size: t.Size, ArraySizesIdx: c.ast.PushIndirection(levels)}
		return nil

	case TagPreInc, TagPreDec, TagPostInc, TagPostDec:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		t := c.ast.Types[data.Lhs]
		if !t.IsInteger() && t.PointerDepth(c.ast.ExtraData) == 0 {
			return typeErr(c.ast.Toks[idx], "++/-- requires an integer or pointer operand")
		}
		c.ast.Types[idx] = t
		return nil

	case TagDotMember:
		return c.checkMember(idx, data, false)

	case TagArrowMember:
		return c.checkMember(idx, data, true)

	case TagOffset:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		if err := c.checkExpr(data.Rhs); err != nil {
			return err
		}
		base := c.ast.Types[data.Lhs]
		if base.PointerDepth(extraData) == 0 {
			return typeErr(c.ast.Toks[idx], "cannot index non-pointer type %s", base.String(extraData))
		}
		if !c.ast.Types[data.Rhs].IsInteger() {
			return typeErr(c.ast.Toks[idx], "array index must be an integer")
		}
		c.ast.Types[idx] = base.PointedType(&c.ast.ExtraData)
		return nil

	case TagCall:
		return c.checkCall(idx, data)

	case TagCast:
		if err := c.checkExpr(data.Lhs); err != nil {
			return err
		}
		c.ast.Types[idx] = c.resolveType(c.ast.TypeRef(data.Aux))
		return nil

	case TagInitList:
		for _, e := range c.ast.Extra(data.Extra) {
			if err := c.checkExpr(e); err != nil {
				return err
			}
		}
		return nil

	case TagScopeResolve:
		if err := c.checkExpr(data.Rhs); err != nil {
			return err
		}
		c.ast.Types[idx] = c.ast.Types[data.Rhs]
		return nil

	case TagAssign, TagAddAssign, TagSubAssign, TagMulAssign, TagDivAssign, TagModAssign,
		TagShlAssign, TagShrAssign, TagAndAssign, TagXorAssign, TagOrAssign:
		return c.checkAssign(idx, tag, data)

	default:
		return fmt.Errorf("internal error: unhandled expression tag %d", tag)
	}
}

func indirectionLevels(t Type, extraData []uint32) []uint32 {
	if t.ArraySizesIdx == -1 {
		return nil
	}
	n := extraData[t.ArraySizesIdx]
	return append([]uint32{}, extraData[t.ArraySizesIdx+1:t.ArraySizesIdx+1+int32(n)]...)
}

func (c *Checker) checkAddSub(idx NodeIndex, data NodeData) error {
	if err := c.checkExpr(data.Lhs); err != nil {
		return err
	}
	if err := c.checkExpr(data.Rhs); err != nil {
		return err
	}
	lt, rt := c.ast.Types[data.Lhs], c.ast.Types[data.Rhs]
	extraData := c.ast.ExtraData
	switch {
	case lt.PointerDepth(extraData) > 0 && rt.PointerDepth(extraData) > 0:
		c.ast.Types[idx] = TypeFromBuiltin(TypeI64, -1)
	case lt.PointerDepth(extraData) > 0 && rt.IsInteger():
		c.ast.Types[idx] = lt
	case rt.PointerDepth(extraData) > 0 && lt.IsInteger() && c.ast.Tags[idx] == TagAdd:
		c.ast.Types[idx] = rt
	default:
		return c.checkNumericBinaryTypes(idx, data)
	}
	return nil
}

func (c *Checker) checkNumericBinary(idx NodeIndex, data NodeData) error {
	if err := c.checkExpr(data.Lhs); err != nil {
		return err
	}
	if err := c.checkExpr(data.Rhs); err != nil {
		return err
	}
	return c.checkNumericBinaryTypes(idx, data)
}

func (c *Checker) checkNumericBinaryTypes(idx NodeIndex, data NodeData) error {
	lt, rt := c.ast.Types[data.Lhs], c.ast.Types[data.Rhs]
	if !(lt.IsInteger() || lt.IsFloat()) || !(rt.IsInteger() || rt.IsFloat()) {
		return typeErr(c.ast.Toks[idx], "operator requires numeric operands")
	}
	if lt.IsFloat() || rt.IsFloat() {
		wide := widerFloat(lt, rt)
		c.ast.Types[idx] = wide
		// A mixed int/float operation runs at the float width; record the
		// conversion on the integer side so codegen can emit it before the
		// float opcode consumes the register.
		c.recordIntToFloat(data.Lhs, lt, wide)
		c.recordIntToFloat(data.Rhs, rt, wide)
		return nil
	}
	if lt.Size >= rt.Size {
		c.ast.Types[idx] = lt
	} else {
		c.ast.Types[idx] = rt
	}
	return nil
}

// recordIntToFloat marks node with the int-to-float conversion a float
// context of type target requires, if node is an integer expression.
func (c *Checker) recordIntToFloat(node NodeIndex, t, target Type) {
	if !t.IsInteger() {
		return
	}
	if target.Size == 4 {
		c.ast.CastOps[node] = CastIntToFlt32
	} else {
		c.ast.CastOps[node] = CastIntToFlt64
	}
}

func widerFloat(a, b Type) Type {
	if a.IsFloat() && a.Size == 8 {
		return a
	}
	if b.IsFloat() && b.Size == 8 {
		return b
	}
	if a.IsFloat() {
		return a
	}
	return b
}

func (c *Checker) checkIntegerBinary(idx NodeIndex, data NodeData) error {
	if err := c.checkExpr(data.Lhs); err != nil {
		return err
	}
	if err := c.checkExpr(data.Rhs); err != nil {
		return err
	}
	lt, rt := c.ast.Types[data.Lhs], c.ast.Types[data.Rhs]
	if !lt.IsInteger() || !rt.IsInteger() {
		return typeErr(c.ast.Toks[idx], "operator requires integer operands")
	}
	if lt.Size >= rt.Size {
		c.ast.Types[idx] = lt
	} else {
		c.ast.Types[idx] = rt
	}
	return nil
}

func (c *Checker) checkMember(idx NodeIndex, data NodeData, arrow bool) error {
	if err := c.checkExpr(data.Lhs); err != nil {
		return err
	}
	base := c.ast.Types[data.Lhs]
	extraData := c.ast.ExtraData
	if arrow {
		if base.PointerDepth(extraData) != 1 {
			return typeErr(c.ast.Toks[idx], "-> requires a type with pointer depth 1")
		}
	} else {
		if base.PointerDepth(extraData) != 0 || !base.IsClass(extraData) {
			return typeErr(c.ast.Toks[idx], ". requires a class value")
		}
	}
	info, ok := c.classes[base.Value]
	if !ok {
		return typeErr(c.ast.Toks[idx], "unknown class in member access")
	}
	field, ok := info.FieldByID(uint32(data.Aux))
	if !ok {
		return typeErr(c.ast.Toks[idx], "unknown field %q", c.ast.IdentName(uint32(data.Aux)))
	}
	c.ast.Bindings[idx] = Binding{Kind: BindField, Offset: field.Offset}
	c.ast.Types[idx] = field.Type
	return nil
}

func (c *Checker) checkCall(idx NodeIndex, data NodeData) error {
	nameID := uint32(data.Aux)
	info, ok := c.functions[nameID]
	if !ok {
		return typeErr(c.ast.Toks[idx], "call to undeclared function %q", c.ast.IdentName(nameID))
	}
	args := c.ast.Extra(data.Extra)
	if len(args) != len(info.Params) {
		return typeErr(c.ast.Toks[idx], "function %q expects %d arguments, got %d",
			c.ast.IdentName(nameID), len(info.Params), len(args))
	}
	for i, a := range args {
		if err := c.checkExpr(a); err != nil {
			return err
		}
		fits := c.ast.Types[a].Fits(info.Params[i].Type, c.ast.ExtraData)
		if fits == FitsNo {
			return typeErr(c.ast.Toks[a], "argument %d does not fit parameter type %s", i+1,
				info.Params[i].Type.String(c.ast.ExtraData))
		}
		c.ast.CastOps[a] = castOpFor(fits)
	}
	c.ast.Bindings[idx] = Binding{Kind: BindFunction}
	c.ast.Types[idx] = info.ReturnType
	return nil
}

func (c *Checker) checkAssign(idx NodeIndex, tag Tag, data NodeData) error {
	if err := c.checkExpr(data.Lhs); err != nil {
		return err
	}
	if err := c.checkExpr(data.Rhs); err != nil {
		return err
	}
	lt, rt := c.ast.Types[data.Lhs], c.ast.Types[data.Rhs]
	if tag != TagAssign {
		if !lt.IsInteger() && !lt.IsFloat() {
			return typeErr(c.ast.Toks[idx], "compound assignment requires a numeric lhs")
		}
	}
	fits := rt.Fits(lt, c.ast.ExtraData)
	if fits == FitsNo {
		return typeErr(c.ast.Toks[idx], "rhs of type %s does not fit lhs of type %s",
			rt.String(c.ast.ExtraData), lt.String(c.ast.ExtraData))
	}
	c.ast.CastOps[idx] = castOpFor(fits)
	c.ast.Types[idx] = lt
	return nil
}

// smallestFittingUint picks the narrowest unsigned built-in type that can
// hold v, per the "smallest fitting built-in unsigned type" literal
// contract.
func smallestFittingUint(v uint64) BuiltinType {
	switch {
	case v <= 0xff:
		return TypeU8
	case v <= 0xffff:
		return TypeU16
	case v <= 0xffffffff:
		return TypeU32
	default:
		return TypeU64
	}
}
