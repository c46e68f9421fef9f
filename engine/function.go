package engine

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

// NativeFunc is the ordinary host-function signature. args is borrowed;
// the return Value is owned by the engine (or the Exception sentinel after
// a throw).
type NativeFunc func(ctx *Context, this Value, args []Value) Value

// NativeFuncMagic is a NativeFunc variant sharing one Go function across
// several bindings, discriminated by the magic integer.
type NativeFuncMagic func(ctx *Context, this Value, args []Value, magic int) Value

// NativeConstructor runs under `new`. newTarget is the constructor object
// the call went through.
type NativeConstructor func(ctx *Context, newTarget Value, args []Value) Value

// NativeGetter and NativeSetter are the accessor signatures.
type NativeGetter func(ctx *Context, this Value) Value
type NativeSetter func(ctx *Context, this, val Value) Value

// NativeIteratorNext advances an iterator, returning the step value and
// the done flag.
type NativeIteratorNext func(ctx *Context, this Value, args []Value) (Value, bool)

// NativeFloat1 and NativeFloat2 are fast-path numeric kernels; arguments
// are coerced to float64 before dispatch.
type NativeFloat1 func(x float64) float64
type NativeFloat2 func(x, y float64) float64

type funcKind int

const (
	funcGeneric funcKind = iota
	funcGenericMagic
	funcConstructor
	funcGetter
	funcSetter
	funcIteratorNext
	funcFloat1
	funcFloat2
)

// nativeFunc is the call payload carried by ClassFunction objects backed by
// host code. Exactly one of the typed slots is set, per kind.
type nativeFunc struct {
	kind   funcKind
	name   string
	length int
	magic  int

	generic      NativeFunc
	genericMagic NativeFuncMagic
	constructor  NativeConstructor
	getter       NativeGetter
	setter       NativeSetter
	iterNext     NativeIteratorNext
	f1           NativeFloat1
	f2           NativeFloat2

	// Script functions compiled by the evaluator route through here; env is
	// the captured scope object (owned by the function object).
	compiled *CompiledFunction
	env      Value
}

// callNativeFunc is the ClassFunction call hook.
func callNativeFunc(ctx *Context, fn, this Value, args []Value, isConstructor bool) Value {
	p := objectOf(fn)
	if p == nil || p.native == nil {
		return ctx.ThrowTypeError("not a function")
	}
	nf := p.native

	if nf.compiled != nil {
		return ctx.callCompiled(nf.compiled, fn, this, args)
	}

	switch nf.kind {
	case funcGeneric:
		return nf.generic(ctx, this, args)
	case funcGenericMagic:
		return nf.genericMagic(ctx, this, args, nf.magic)
	case funcConstructor:
		if !isConstructor {
			return ctx.ThrowTypeError("constructor %s requires new", nf.name)
		}
		return nf.constructor(ctx, fn, args)
	case funcGetter:
		return nf.getter(ctx, this)
	case funcSetter:
		arg := Undefined
		if len(args) > 0 {
			arg = args[0]
		}
		return nf.setter(ctx, this, arg)
	case funcIteratorNext:
		v, done := nf.iterNext(ctx, this, args)
		if v.IsException() {
			return v
		}
		step := ctx.NewObject()
		if step.IsException() {
			ctx.rt.FreeValue(v)
			return step
		}
		ctx.DefinePropertyValueStr(step, "value", v, PropCWE)
		ctx.DefinePropertyValueStr(step, "done", NewBool(done), PropCWE)
		return step
	case funcFloat1:
		x, ok := ctx.ToFloat64(argOr(args, 0))
		if !ok {
			return Exception
		}
		return NewFloat64(nf.f1(x))
	case funcFloat2:
		x, ok := ctx.ToFloat64(argOr(args, 0))
		if !ok {
			return Exception
		}
		y, ok := ctx.ToFloat64(argOr(args, 1))
		if !ok {
			return Exception
		}
		return NewFloat64(nf.f2(x, y))
	}
	return ctx.ThrowInternalError("corrupt native function")
}

func argOr(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// newNativeFuncValue builds the ClassFunction object for a call payload.
func (ctx *Context) newNativeFuncValue(nf *nativeFunc) Value {
	fn := ctx.NewObjectClass(ClassFunction)
	if fn.IsException() {
		return fn
	}
	objectOf(fn).native = nf
	ctx.DefinePropertyValueStr(fn, "name", ctx.NewString(nf.name), PropConfigurable)
	ctx.DefinePropertyValueStr(fn, "length", NewInt32(int32(nf.length)), PropConfigurable)
	return fn
}

// NewFunction creates a callable object around a host function.
func (ctx *Context) NewFunction(fn NativeFunc, name string, length int) Value {
	return ctx.newNativeFuncValue(&nativeFunc{
		kind:    funcGeneric,
		name:    name,
		length:  length,
		generic: fn,
	})
}

// NewFunctionMagic creates a callable sharing fn across bindings that
// differ only by magic.
func (ctx *Context) NewFunctionMagic(fn NativeFuncMagic, name string, length, magic int) Value {
	return ctx.newNativeFuncValue(&nativeFunc{
		kind:         funcGenericMagic,
		name:         name,
		length:       length,
		magic:        magic,
		genericMagic: fn,
	})
}

// NewConstructor creates a constructible callable with a fresh prototype
// object wired both ways.
func (ctx *Context) NewConstructor(fn NativeConstructor, name string, length int) Value {
	ctor := ctx.newNativeFuncValue(&nativeFunc{
		kind:        funcConstructor,
		name:        name,
		length:      length,
		constructor: fn,
	})
	if ctor.IsException() {
		return ctor
	}
	ctx.SetConstructorBit(ctor, true)

	proto := ctx.NewObject()
	if proto.IsException() {
		ctx.rt.FreeValue(ctor)
		return proto
	}
	ctx.DefinePropertyValueStr(proto, "constructor", ctx.rt.DupValue(ctor), PropWritable|PropConfigurable)
	ctx.DefinePropertyValueStr(ctor, "prototype", proto, 0)
	return ctor
}

// NewIteratorNextFunction creates a callable whose results are wrapped in
// {value, done} step objects.
func (ctx *Context) NewIteratorNextFunction(fn NativeIteratorNext, name string) Value {
	return ctx.newNativeFuncValue(&nativeFunc{
		kind:     funcIteratorNext,
		name:     name,
		iterNext: fn,
	})
}

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// Call invokes fn with this and borrowed args, returning an owned result
// or the Exception sentinel. Polls the interrupt handler and enforces the
// stack bound.
func (ctx *Context) Call(fn, this Value, args []Value) Value {
	p := objectOf(fn)
	if p == nil {
		return ctx.ThrowTypeError("not a function")
	}
	cls := ctx.rt.classes[p.class]
	if cls == nil || cls.def.Call == nil {
		return ctx.ThrowTypeError("object of class %s is not callable", ctx.className(p.class))
	}
	if ctx.pollInterrupt() {
		return Exception
	}
	name := ""
	if p.native != nil {
		name = p.native.name
	}
	if !ctx.pushFrame(stackFrame{name: name}) {
		return Exception
	}
	defer ctx.popFrame()
	return cls.def.Call(ctx, fn, this, args, false)
}

// CallConstructor invokes fn through `new`. The constructor bit gates the
// call; args are borrowed.
func (ctx *Context) CallConstructor(fn Value, args []Value) Value {
	p := objectOf(fn)
	if p == nil || !ctx.IsConstructor(fn) {
		return ctx.ThrowTypeError("not a constructor")
	}
	cls := ctx.rt.classes[p.class]
	if cls == nil || cls.def.Call == nil {
		return ctx.ThrowTypeError("not a constructor")
	}
	if ctx.pollInterrupt() {
		return Exception
	}
	name := ""
	if p.native != nil {
		name = p.native.name
	}
	if !ctx.pushFrame(stackFrame{name: name}) {
		return Exception
	}
	defer ctx.popFrame()
	return cls.def.Call(ctx, fn, Undefined, args, true)
}

// ---------------------------------------------------------------------------
// Declarative property lists
// ---------------------------------------------------------------------------

type entryKind int

const (
	entryFunc entryKind = iota
	entryFuncMagic
	entryGetSet
	entryString
	entryInt32
	entryInt64
	entryFloat64
	entryObject
	entryAlias
)

// PropertyEntry is one row of a declarative binding table consumed by
// SetPropertyFunctionList. Build rows with the *Entry constructors.
type PropertyEntry struct {
	Name  string
	Flags PropFlags

	kind    entryKind
	length  int
	magic   int
	fn      NativeFunc
	fnMagic NativeFuncMagic
	getter  NativeGetter
	setter  NativeSetter
	str     string
	i32     int32
	i64     int64
	f64     float64
	sub     []PropertyEntry
	target  string
}

// defaultEntryFlags matches the convention for built-in bindings: writable
// and configurable, not enumerable.
const defaultEntryFlags = PropWritable | PropConfigurable

// FuncEntry binds a host function.
func FuncEntry(name string, length int, fn NativeFunc) PropertyEntry {
	return PropertyEntry{Name: name, Flags: defaultEntryFlags, kind: entryFunc, length: length, fn: fn}
}

// FuncMagicEntry binds a magic-discriminated host function.
func FuncMagicEntry(name string, length, magic int, fn NativeFuncMagic) PropertyEntry {
	return PropertyEntry{Name: name, Flags: defaultEntryFlags, kind: entryFuncMagic, length: length, magic: magic, fnMagic: fn}
}

// GetSetEntry binds an accessor pair; either half may be nil.
func GetSetEntry(name string, getter NativeGetter, setter NativeSetter) PropertyEntry {
	return PropertyEntry{Name: name, Flags: PropConfigurable, kind: entryGetSet, getter: getter, setter: setter}
}

// StringEntry binds a string constant.
func StringEntry(name, value string) PropertyEntry {
	return PropertyEntry{Name: name, Flags: defaultEntryFlags, kind: entryString, str: value}
}

// Int32Entry binds an integer constant.
func Int32Entry(name string, value int32) PropertyEntry {
	return PropertyEntry{Name: name, Flags: defaultEntryFlags, kind: entryInt32, i32: value}
}

// Int64Entry binds a wide integer constant.
func Int64Entry(name string, value int64) PropertyEntry {
	return PropertyEntry{Name: name, Flags: defaultEntryFlags, kind: entryInt64, i64: value}
}

// Float64Entry binds a float constant.
func Float64Entry(name string, value float64) PropertyEntry {
	return PropertyEntry{Name: name, Flags: defaultEntryFlags, kind: entryFloat64, f64: value}
}

// ObjectEntry binds a nested plain object populated from its own table.
func ObjectEntry(name string, entries []PropertyEntry) PropertyEntry {
	return PropertyEntry{Name: name, Flags: defaultEntryFlags, kind: entryObject, sub: entries}
}

// AliasEntry binds name to the value already bound under target on the
// same object.
func AliasEntry(name, target string) PropertyEntry {
	return PropertyEntry{Name: name, Flags: defaultEntryFlags, kind: entryAlias, target: target}
}

// SetPropertyFunctionList applies a binding table to obj. Aliases resolve
// against bindings applied earlier in the same table.
func (ctx *Context) SetPropertyFunctionList(obj Value, entries []PropertyEntry) {
	for _, e := range entries {
		var v Value
		switch e.kind {
		case entryFunc:
			v = ctx.NewFunction(e.fn, e.Name, e.length)
		case entryFuncMagic:
			v = ctx.NewFunctionMagic(e.fnMagic, e.Name, e.length, e.magic)
		case entryGetSet:
			getter, setter := Undefined, Undefined
			if e.getter != nil {
				getter = ctx.newNativeFuncValue(&nativeFunc{kind: funcGetter, name: "get " + e.Name, getter: e.getter})
			}
			if e.setter != nil {
				setter = ctx.newNativeFuncValue(&nativeFunc{kind: funcSetter, name: "set " + e.Name, length: 1, setter: e.setter})
			}
			a := ctx.rt.NewAtom(e.Name)
			ctx.DefinePropertyGetSet(obj, a, getter, setter, e.Flags)
			ctx.rt.FreeAtom(a)
			continue
		case entryString:
			v = ctx.NewString(e.str)
		case entryInt32:
			v = NewInt32(e.i32)
		case entryInt64:
			v = NewInt64(e.i64)
		case entryFloat64:
			v = NewFloat64(e.f64)
		case entryObject:
			v = ctx.NewObject()
			if !v.IsException() {
				ctx.SetPropertyFunctionList(v, e.sub)
			}
		case entryAlias:
			v = ctx.GetPropertyStr(obj, e.target)
		}
		if v.IsException() {
			continue
		}
		ctx.DefinePropertyValueStr(obj, e.Name, v, e.Flags)
	}
}
