package engine

import "math"

// ---------------------------------------------------------------------------
// Value: The tagged variant flowing through every engine API
// ---------------------------------------------------------------------------

// Tag identifies the kind of payload a Value carries.
//
// Negative tags are reference counted: the Value owns a share of a heap
// cell, and the share must eventually be released with FreeValue or handed
// onward. Non-negative tags are plain value types with no heap ownership.
type Tag int8

const (
	// Reference-counted tags. Everything in [TagFirst, 0) owns a cell.
	TagFirst            Tag = -9
	TagBigInt           Tag = -9
	TagSymbol           Tag = -8
	TagString           Tag = -7
	TagModule           Tag = -3
	TagFunctionBytecode Tag = -2
	TagObject           Tag = -1

	// Value-type tags.
	TagInt           Tag = 0
	TagBool          Tag = 1
	TagNull          Tag = 2
	TagUndefined     Tag = 3
	TagUninitialized Tag = 4
	TagCatchOffset   Tag = 5
	TagException     Tag = 6
	TagFloat64       Tag = 7
)

// Value is a discriminated union: a tag plus an inline integer, an inline
// float, or a pointer to a reference-counted heap cell.
//
// Ownership contract: every API that returns a ref-counted Value transfers
// one owned share to the caller. APIs accepting a Value borrow it unless
// documented as taking ownership.
type Value struct {
	tag  Tag
	i    int64
	f    float64
	cell *cell
}

// Pre-defined value-type singletons.
var (
	Null          = Value{tag: TagNull}
	Undefined     = Value{tag: TagUndefined}
	Uninitialized = Value{tag: TagUninitialized}
	True          = Value{tag: TagBool, i: 1}
	False         = Value{tag: TagBool, i: 0}

	// Exception is the out-of-band sentinel meaning "an error is pending on
	// the owning Context". It is never a real result.
	Exception = Value{tag: TagException}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// NewBool creates a boolean Value.
func NewBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// NewInt32 creates an integer Value.
func NewInt32(n int32) Value {
	return Value{tag: TagInt, i: int64(n)}
}

// NewInt64 creates an integer Value if n fits in 32 bits, otherwise a
// float64 Value.
func NewInt64(n int64) Value {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return Value{tag: TagInt, i: n}
	}
	return NewFloat64(float64(n))
}

// NewFloat64 creates a float Value.
func NewFloat64(f float64) Value {
	return Value{tag: TagFloat64, f: f}
}

// NewCatchOffset creates a catch-offset marker value. Only the bytecode
// collaborator has a use for these; the core treats them as opaque.
func NewCatchOffset(off int32) Value {
	return Value{tag: TagCatchOffset, i: int64(off)}
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// Tag returns the value's tag.
func (v Value) Tag() Tag {
	return v.tag
}

// HasRefCount returns true if v owns a share of a heap cell.
func (v Value) HasRefCount() bool {
	return v.tag >= TagFirst && v.tag < 0
}

// IsException returns true if v is the pending-error sentinel.
func (v Value) IsException() bool {
	return v.tag == TagException
}

// IsUndefined returns true if v is undefined.
func (v Value) IsUndefined() bool {
	return v.tag == TagUndefined
}

// IsNull returns true if v is null.
func (v Value) IsNull() bool {
	return v.tag == TagNull
}

// IsUninitialized returns true if v is the uninitialized marker.
func (v Value) IsUninitialized() bool {
	return v.tag == TagUninitialized
}

// IsBool returns true if v is a boolean.
func (v Value) IsBool() bool {
	return v.tag == TagBool
}

// IsInt returns true if v is an inline integer.
func (v Value) IsInt() bool {
	return v.tag == TagInt
}

// IsFloat64 returns true if v is a float.
func (v Value) IsFloat64() bool {
	return v.tag == TagFloat64
}

// IsNumber returns true if v is an integer or a float.
func (v Value) IsNumber() bool {
	return v.tag == TagInt || v.tag == TagFloat64
}

// IsString returns true if v is a string cell.
func (v Value) IsString() bool {
	return v.tag == TagString
}

// IsSymbol returns true if v is a symbol cell.
func (v Value) IsSymbol() bool {
	return v.tag == TagSymbol
}

// IsBigInt returns true if v is a bigint cell.
func (v Value) IsBigInt() bool {
	return v.tag == TagBigInt
}

// IsObject returns true if v is an object cell.
func (v Value) IsObject() bool {
	return v.tag == TagObject
}

// IsFunctionBytecode returns true if v is a compiled-function cell.
func (v Value) IsFunctionBytecode() bool {
	return v.tag == TagFunctionBytecode
}

// IsModule returns true if v is a module cell.
func (v Value) IsModule() bool {
	return v.tag == TagModule
}

// ---------------------------------------------------------------------------
// Payload access
// ---------------------------------------------------------------------------

// Int32 returns the inline integer payload.
// Panics if v is not an integer.
func (v Value) Int32() int32 {
	if v.tag != TagInt {
		panic("Value.Int32: not an integer")
	}
	return int32(v.i)
}

// Float64 returns the float payload. Integer values are widened.
// Panics if v is not a number.
func (v Value) Float64() float64 {
	switch v.tag {
	case TagFloat64:
		return v.f
	case TagInt:
		return float64(v.i)
	}
	panic("Value.Float64: not a number")
}

// Bool returns the boolean payload.
// Panics if v is not a boolean.
func (v Value) Bool() bool {
	if v.tag != TagBool {
		panic("Value.Bool: not a boolean")
	}
	return v.i != 0
}

// CatchOffset returns the catch-offset payload.
// Panics if v is not a catch-offset marker.
func (v Value) CatchOffset() int32 {
	if v.tag != TagCatchOffset {
		panic("Value.CatchOffset: not a catch offset")
	}
	return int32(v.i)
}

// RefCount returns the share count of the underlying cell, or 0 for value
// types. Exposed for leak diagnostics and tests.
func (v Value) RefCount() int {
	if !v.HasRefCount() || v.cell == nil {
		return 0
	}
	return v.cell.refCount
}

// SameValue reports whether two values are the same inline value or the
// same heap cell. It is identity, not ECMAScript equality.
func SameValue(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	if a.HasRefCount() {
		return a.cell == b.cell
	}
	switch a.tag {
	case TagFloat64:
		return math.Float64bits(a.f) == math.Float64bits(b.f)
	default:
		return a.i == b.i
	}
}
