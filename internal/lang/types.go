package lang

// BuiltinType is the value a Type carries when it names a primitive rather
// than a user-defined class. Class ids are allocated starting at
// TypeBuiltinEnd so a single uint32 namespace covers both.
type BuiltinType uint32

const (
	TypeUndefined BuiltinType = iota
	TypeV0
	TypeU8
	TypeI8
	TypeU16
	TypeI16
	TypeU32
	TypeI32
	TypeU64
	TypeI64
	TypeF32
	TypeF64
	TypeBuiltinEnd
)

// BuiltinTypeFromName maps a lexed TYPE token to its BuiltinType, reporting
// ok=false for class names (the caller must resolve those against the
// class symbol table instead).
func BuiltinTypeFromName(name string) (BuiltinType, bool) {
	switch name {
	case "v0":
		return TypeV0, true
	case "u8":
		return TypeU8, true
	case "i8":
		return TypeI8, true
	case "u16":
		return TypeU16, true
	case "i16":
		return TypeI16, true
	case "u32":
		return TypeU32, true
	case "i32":
		return TypeI32, true
	case "u64":
		return TypeU64, true
	case "i64":
		return TypeI64, true
	case "f32":
		return TypeF32, true
	case "f64":
		return TypeF64, true
	default:
		return TypeUndefined, false
	}
}

func (b BuiltinType) String() string {
	switch b {
	case TypeV0:
		return "v0"
	case TypeU8:
		return "u8"
	case TypeI8:
		return "i8"
	case TypeU16:
		return "u16"
	case TypeI16:
		return "i16"
	case TypeU32:
		return "u32"
	case TypeI32:
		return "i32"
	case TypeU64:
		return "u64"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	default:
		return "undefined"
	}
}

// builtinByteSize is the unpointed byte size of every primitive.
func builtinByteSize(b BuiltinType) uint32 {
	switch b {
	case TypeU8, TypeI8:
		return 1
	case TypeU16, TypeI16:
		return 2
	case TypeU32, TypeI32, TypeF32:
		return 4
	case TypeU64, TypeI64, TypeF64:
		return 8
	default:
		return 0
	}
}

// TypeFromBuiltin builds the Type value for a primitive, optionally with an
// indirection list already allocated in extraData (arraySizesIdx >= 0).
func TypeFromBuiltin(b BuiltinType, arraySizesIdx int32) Type {
	return Type{Value: uint32(b), Size: builtinByteSize(b), ArraySizesIdx: arraySizesIdx}
}

// Type is the value type of an expression or declaration: a primitive or
// class id, the unpointed byte size, and an optional index into the
// owning AST's ExtraData indirection table.
//
// When ArraySizesIdx is -1 the type has no indirection. Otherwise
// extraData[idx] holds the indirection-list length n, followed by n
// entries where 0 means "pointer" and a positive value means "array of
// that many elements" — read back-to-front, the entries closest to the
// base type are nearest the end of the list.
type Type struct {
	Value         uint32
	Size          uint32
	ArraySizesIdx int32
}

// Fits is the result of asking whether a value of one type can be used
// where another type is expected.
type Fits int

const (
	FitsNo Fits = iota
	FitsYes
	FitsFlt32ToIntCastNeeded
	FitsFlt64ToIntCastNeeded
	FitsIntToFlt32CastNeeded
	FitsIntToFlt64CastNeeded
)

// PointerDepth returns how many levels of pointer/array indirection sit on
// top of the base type.
func (t Type) PointerDepth(extraData []uint32) uint32 {
	if t.ArraySizesIdx == -1 {
		return 0
	}
	return extraData[t.ArraySizesIdx]
}

// ByteSize returns 8 (a pointer's width) if any indirection remains after
// dereferencing derefDepth levels, else the base type's own size.
func (t Type) ByteSize(extraData []uint32, derefDepth uint32) uint32 {
	if t.PointerDepth(extraData) > derefDepth {
		return 8
	}
	return t.Size
}

// PointedByteSize is the byte size of the element one dereference away.
func (t Type) PointedByteSize() uint32 {
	return t.Size
}

// PointedType strips one level of indirection, appending the shortened
// indirection list to extraData and returning the new Type. Panics (via
// the caller's invariant) if t has no indirection — callers must check
// PointerDepth first.
func (t Type) PointedType(extraData *[]uint32) Type {
	oldLen := (*extraData)[t.ArraySizesIdx]
	newIdx := int32(len(*extraData))
	*extraData = append(*extraData, oldLen-1)
	for i := t.ArraySizesIdx + 2; i < t.ArraySizesIdx+1+int32(oldLen); i++ {
		*extraData = append(*extraData, (*extraData)[i])
	}
	return Type{Value: t.Value, Size: t.Size, ArraySizesIdx: newIdx}
}

// StorageSize is the total byte footprint of a (possibly multi-dimensional
// array) type: the product of its array dimensions times the byte size of
// whatever indirection remains past them.
func (t Type) StorageSize(extraData []uint32) uint32 {
	if t.PointerDepth(extraData) == 0 {
		return t.Size
	}

	nMembers := uint32(1)
	dim := uint32(0)
	length := extraData[t.ArraySizesIdx]
	for i := t.ArraySizesIdx + int32(length); i > t.ArraySizesIdx; i-- {
		if extraData[i] == 0 {
			break
		}
		nMembers *= extraData[i]
		dim++
	}
	return nMembers * t.ByteSize(extraData, dim)
}

// IsArray reports whether the outermost indirection level is an array
// dimension rather than a bare pointer.
func (t Type) IsArray(extraData []uint32) bool {
	if t.ArraySizesIdx == -1 {
		return false
	}
	length := extraData[t.ArraySizesIdx]
	if length == 0 {
		return false
	}
	return extraData[t.ArraySizesIdx+int32(length)] != 0
}

// IsClass reports whether this type names a user-defined class with no
// indirection; a pointer to a class is not itself a class.
func (t Type) IsClass(extraData []uint32) bool {
	if t.Value < uint32(TypeBuiltinEnd) {
		return false
	}
	return t.PointerDepth(extraData) == 0
}

// IsInteger reports whether the base type is any built-in integer width
// (signed or unsigned), including v0.
func (t Type) IsInteger() bool {
	switch BuiltinType(t.Value) {
	case TypeV0, TypeU8, TypeI8, TypeU16, TypeI16, TypeU32, TypeI32, TypeU64, TypeI64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether the base type is f32 or f64.
func (t Type) IsFloat() bool {
	return BuiltinType(t.Value) == TypeF32 || BuiltinType(t.Value) == TypeF64
}

// IsSigned reports whether the base type is a signed integer width.
func (t Type) IsSigned() bool {
	switch BuiltinType(t.Value) {
	case TypeI8, TypeI16, TypeI32, TypeI64:
		return true
	default:
		return false
	}
}

// IsPrimitive reports whether the base type is one of the built-ins.
func (t Type) IsPrimitive() bool {
	switch BuiltinType(t.Value) {
	case TypeV0, TypeU8, TypeI8, TypeU16, TypeI16, TypeU32, TypeI32, TypeU64, TypeI64, TypeF32, TypeF64:
		return true
	default:
		return false
	}
}

// Fits decides whether a value of type t can be used where dst is
// expected without an explicit cast, per the fit rules in the type
// system: identical-class for classes, byte-size-no-wider plus an
// implicit numeric-conversion flag for primitives, nothing else fits.
func (t Type) Fits(dst Type, extraData []uint32) Fits {
	if t.IsPrimitive() {
		if !dst.IsPrimitive() {
			return FitsNo
		}
		if t.ByteSize(extraData, 0) > dst.ByteSize(extraData, 0) {
			return FitsNo
		}
		if t.IsFloat() && dst.IsInteger() {
			if t.Size == 4 {
				return FitsFlt32ToIntCastNeeded
			}
			return FitsFlt64ToIntCastNeeded
		}
		if t.IsInteger() && dst.IsFloat() {
			if dst.Size == 4 {
				return FitsIntToFlt32CastNeeded
			}
			return FitsIntToFlt64CastNeeded
		}
		return FitsYes
	}

	if t.Value >= uint32(TypeBuiltinEnd) {
		if t.Value != dst.Value {
			return FitsNo
		}
		return FitsYes
	}

	return FitsNo
}

// String renders a Type the way diagnostics print it: the base name
// followed by its indirection suffixes, `*` for a pointer level and
// `[n]` for an array dimension, read outermost-first.
func (t Type) String(extraData []uint32) string {
	var s string
	if t.Value < uint32(TypeBuiltinEnd) {
		s = BuiltinType(t.Value).String()
	} else {
		s = "class(" + itoa(t.Value) + ")"
	}
	if t.ArraySizesIdx == -1 {
		return s
	}
	length := extraData[t.ArraySizesIdx]
	for i := t.ArraySizesIdx + 1; i < t.ArraySizesIdx+1+int32(length); i++ {
		if extraData[i] == 0 {
			s += "*"
		} else {
			s += "[" + itoa(extraData[i]) + "]"
		}
	}
	return s
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
